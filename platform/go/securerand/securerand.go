// Package securerand generates unguessable strings from crypto/rand.
package securerand

import (
	"crypto/rand"
	"fmt"
)

const (
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	lowerAlnum   = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// TokenLength is the length of invitation tokens. 64 characters over a
// 62-symbol alphabet carry about 381 bits of entropy.
const TokenLength = 64

// SuffixLength is the length of project slug suffixes.
const SuffixLength = 6

// String returns n characters drawn uniformly from alphabet.
func String(n int, alphabet string) (string, error) {
	if n <= 0 {
		return "", nil
	}
	if len(alphabet) == 0 || len(alphabet) > 256 {
		return "", fmt.Errorf("alphabet size %d out of range", len(alphabet))
	}

	// Bytes at or above limit are rejected so every symbol is equally likely.
	limit := 256 - 256%len(alphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n+n/4+8)

	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// Token returns an invitation token.
func Token() (string, error) {
	return String(TokenLength, alphanumeric)
}

// Suffix returns a lower-case slug suffix.
func Suffix() (string, error) {
	return String(SuffixLength, lowerAlnum)
}
