// Package problem renders RFC 7807 problem documents.
package problem

import (
	"encoding/json"
	"net/http"
)

const ContentType = "application/problem+json"

const (
	TypeValidation   = "https://palmyra.dev/problems/validation-error"
	TypeUnauthorized = "https://palmyra.dev/problems/unauthorized"
	TypeForbidden    = "https://palmyra.dev/problems/forbidden"
	TypeNotFound     = "https://palmyra.dev/problems/not-found"
	TypeConflict     = "https://palmyra.dev/problems/conflict"
	TypeGone         = "https://palmyra.dev/problems/gone"
	TypeInternal     = "https://palmyra.dev/problems/internal-error"
)

// Details is the problem document body.
type Details struct {
	Type     string              `json:"type,omitempty"`
	Title    string              `json:"title"`
	Status   int                 `json:"status"`
	Detail   string              `json:"detail,omitempty"`
	Instance string              `json:"instance,omitempty"`
	Errors   map[string][]string `json:"errors,omitempty"`
}

// TypeForStatus maps a status code to its problem type URI.
func TypeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return TypeValidation
	case http.StatusUnauthorized:
		return TypeUnauthorized
	case http.StatusForbidden:
		return TypeForbidden
	case http.StatusNotFound:
		return TypeNotFound
	case http.StatusConflict:
		return TypeConflict
	case http.StatusGone:
		return TypeGone
	default:
		return TypeInternal
	}
}

// Write renders a problem for r with the given status.
func Write(w http.ResponseWriter, r *http.Request, status int, title, detail string, fields map[string][]string) {
	d := Details{
		Type:   TypeForStatus(status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
	if r != nil {
		d.Instance = r.URL.Path
	}
	if len(fields) > 0 {
		d.Errors = make(map[string][]string, len(fields))
		for field, messages := range fields {
			d.Errors[field] = append([]string(nil), messages...)
		}
	}
	WriteDetails(w, d)
}

// WriteDetails renders d as is.
func WriteDetails(w http.ResponseWriter, d Details) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}
