// Package middleware adapts the engine to net/http: a bearer-token guard,
// a rate limiting wrapper, and RFC 7807 problem responses.
package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	dreamerauth "github.com/cuzo151/dreamer-auth"
)

// Problem is an RFC 7807 error envelope.
type Problem struct {
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Status    int       `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Instance  string    `json:"instance,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const problemTypeBase = "https://dreamer-auth.dev/problems/"

// FromError builds a Problem from an engine error using its machine code.
// Infrastructure failures keep their wrapped cause server-side; the
// envelope carries only the stable code for those.
func FromError(err error, instance string) Problem {
	code, status := dreamerauth.CodeOf(err)
	detail := err.Error()
	switch code {
	case "store_unavailable", "internal_error", "engine_not_ready":
		detail = ""
	}
	return Problem{
		Type:      problemTypeBase + code,
		Title:     http.StatusText(status),
		Status:    status,
		Detail:    detail,
		Instance:  instance,
		Timestamp: time.Now().UTC(),
	}
}

// WriteProblem renders the problem with the application/problem+json
// content type.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	WriteProblem(w, FromError(err, r.URL.Path))
}
