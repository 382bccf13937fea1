package tenant

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

const fallbackSlug = "project"

// Slugify lower-cases name, folds accents, and joins alphanumeric runs with
// single hyphens. Names with no usable characters yield "project".
func Slugify(name string) string {
	var b strings.Builder
	pendingHyphen := false

	for _, r := range norm.NFKD.String(name) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingHyphen = true
		}
	}

	if b.Len() == 0 {
		return fallbackSlug
	}
	return b.String()
}

// BuildSlug appends the random suffix that keeps project slugs globally unique.
func BuildSlug(name, suffix string) string {
	return Slugify(name) + "-" + suffix
}

// ValidSlug reports whether s is lower-case kebab-case.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}
