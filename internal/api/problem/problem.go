// Package problem writes RFC 7807 error responses and defines the
// authorization error kinds surfaced by the API.
package problem

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

const contentType = "application/problem+json"

// Problem type URIs. Clients dispatch on these, not on titles.
const (
	TypeSudoRequired      = "https://faultline.dev/problems/sudo-required"
	TypeEmailVerification = "https://faultline.dev/problems/email-verification-required"
	TypeUnauthorized      = "https://faultline.dev/problems/unauthorized"
	TypeForbidden         = "https://faultline.dev/problems/forbidden"
	TypeNotFound          = "https://faultline.dev/problems/not-found"
	TypeValidation        = "https://faultline.dev/problems/validation-error"
	TypeConflict          = "https://faultline.dev/problems/conflict"
	TypeServerError       = "https://faultline.dev/problems/server-error"
)

var (
	// ErrSudoRequired signals that the session must be re-elevated
	// before the operation is allowed. Clients re-authenticate against
	// the sudo endpoint and retry.
	ErrSudoRequired = errors.New("sudo required")

	// ErrEmailVerificationRequired signals that the account has no
	// verified email address. Clients verify an address and retry.
	ErrEmailVerificationRequired = errors.New("email verification required")

	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

type ProblemDetails struct {
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Status   int                    `json:"status"`
	Detail   string                 `json:"detail,omitempty"`
	Instance string                 `json:"instance,omitempty"`
	Errors   map[string]interface{} `json:"errors,omitempty"`
}

type Option func(*ProblemDetails)

func WithDetail(detail string) Option {
	return func(p *ProblemDetails) {
		p.Detail = detail
	}
}

func WithErrors(errs map[string]interface{}) Option {
	return func(p *ProblemDetails) {
		p.Errors = errs
	}
}

func Write(w http.ResponseWriter, r *http.Request, status int, typ, title string, err error, env string, opts ...Option) {
	problem := ProblemDetails{
		Type:   typ,
		Title:  title,
		Status: status,
	}

	for _, opt := range opts {
		opt(&problem)
	}

	if problem.Detail == "" && err != nil {
		if env == "development" || env == "test" {
			problem.Detail = err.Error()
		} else {
			problem.Detail = http.StatusText(status)
		}
	}

	if problem.Instance == "" && r != nil {
		problem.Instance = r.URL.Path
	}

	if err != nil && r != nil {
		logger := zerolog.Ctx(r.Context())
		event := logger.Warn()
		if status >= 500 {
			event = logger.Error()
		}
		event.
			Err(err).
			Int("status", status).
			Str("type", typ).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg(title)
	}

	WriteProblem(w, problem)
}

// SudoRequired writes the 401 emitted when an operation requires an
// elevated session.
func SudoRequired(w http.ResponseWriter, r *http.Request, env string) {
	Write(w, r, http.StatusUnauthorized, TypeSudoRequired, "Sudo required", ErrSudoRequired, env,
		WithDetail("This operation requires an elevated session. Re-authenticate and retry."))
}

// EmailVerificationRequired writes the 401 emitted when an operation
// requires a verified email address on the account.
func EmailVerificationRequired(w http.ResponseWriter, r *http.Request, env string) {
	Write(w, r, http.StatusUnauthorized, TypeEmailVerification, "Email verification required", ErrEmailVerificationRequired, env,
		WithDetail("This operation requires a verified email address. Verify an address and retry."))
}

func WriteProblem(w http.ResponseWriter, problem ProblemDetails) {
	payload, err := json.Marshal(problem)
	if err != nil {
		fallback := fmt.Sprintf("{\"type\":\"about:blank\",\"title\":\"%s\",\"status\":500}", http.StatusText(http.StatusInternalServerError))
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(fallback))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(problem.Status)
	_, _ = w.Write(payload)
}
