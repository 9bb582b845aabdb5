// Package api serves the VigilAero readiness HTTP API. Errors are RFC 7807
// problem documents.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/wolfofmycity/vigilaero-platform/pkg/artifacts"
	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/controlstate"
	"github.com/wolfofmycity/vigilaero-platform/pkg/evidence"
	"github.com/wolfofmycity/vigilaero-platform/pkg/readiness"
)

const problemTypeBase = "https://vigilaero.io/errors/"

// ProblemDetail is an RFC 7807 problem document. Title is always the
// standard status text.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// TraceID echoes the X-Request-ID of the failing request.
	TraceID string `json:"trace_id,omitempty"`
}

func (p *ProblemDetail) Error() string {
	if p.Detail == "" {
		return p.Title
	}
	return p.Title + ": " + p.Detail
}

func newProblem(status int, detail string) *ProblemDetail {
	return &ProblemDetail{
		Type:   problemTypeBase + strconv.Itoa(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}
}

func (p *ProblemDetail) write(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/problem+json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteError writes a problem document for status.
func WriteError(w http.ResponseWriter, status int, detail string) {
	newProblem(status, detail).write(w)
}

// WriteErrorR is WriteError plus the request path and request id.
func WriteErrorR(w http.ResponseWriter, r *http.Request, status int, detail string) {
	p := newProblem(status, detail)
	p.Instance = r.URL.Path
	p.TraceID = w.Header().Get(RequestIDHeader)
	p.write(w)
}

// WriteUnauthorized writes a 401. An empty detail gets a default message.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="vigilaero"`)
	WriteError(w, http.StatusUnauthorized, detail)
}

// WriteTooManyRequests writes a 429 asking the client to wait retryAfter
// seconds.
func WriteTooManyRequests(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	WriteError(w, http.StatusTooManyRequests, "request rate limit reached")
}

// WriteInternal writes a 500. err is logged and never sent to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("request failed", "error", err)
	WriteError(w, http.StatusInternalServerError, "the request could not be completed")
}

// domainStatus maps readiness, control-state, evidence and artifact errors
// onto HTTP statuses. Zero means unclassified.
func domainStatus(err error) int {
	switch {
	case errors.Is(err, controlstate.ErrInvalidStatus),
		errors.Is(err, evidence.ErrInvalidQuery),
		errors.Is(err, artifacts.ErrInvalidRef):
		return http.StatusBadRequest
	case errors.Is(err, readiness.ErrUnknownFramework),
		errors.Is(err, controlstate.ErrUnknownControl),
		errors.Is(err, artifacts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, readiness.ErrNotWired),
		errors.Is(err, controlstate.ErrNotActivated):
		return http.StatusConflict
	}
	return 0
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := domainStatus(err)
	if status == 0 {
		WriteInternal(w, err)
		return
	}
	WriteErrorR(w, r, status, err.Error())
}
