package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfofmycity/vigilaero-platform/pkg/artifacts"
	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/controlstate"
	"github.com/wolfofmycity/vigilaero-platform/pkg/evidence"
	"github.com/wolfofmycity/vigilaero-platform/pkg/readiness"
)

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var p ProblemDetail
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	return p
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusBadRequest, "field is missing")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, "https://vigilaero.io/errors/400", p.Type)
	assert.Equal(t, 400, p.Status)
	assert.Equal(t, "Bad Request", p.Title)
	assert.Equal(t, "field is missing", p.Detail)
	assert.Empty(t, p.Instance)
}

func TestWriteErrorR_AddsRequestContext(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set(RequestIDHeader, "req-42")
	r := httptest.NewRequest(http.MethodGet, "/api/compliance/frameworks/faa_107/summary", nil)

	WriteErrorR(w, r, http.StatusNotFound, "unknown framework")

	p := decodeProblem(t, w)
	assert.Equal(t, "/api/compliance/frameworks/faa_107/summary", p.Instance)
	assert.Equal(t, "req-42", p.TraceID)
}

func TestWriteTooManyRequests(t *testing.T) {
	w := httptest.NewRecorder()
	WriteTooManyRequests(w, 5)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
}

func TestWriteUnauthorized_DefaultDetail(t *testing.T) {
	w := httptest.NewRecorder()
	WriteUnauthorized(w, "")
	assert.Equal(t, "Authentication required", decodeProblem(t, w).Detail)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestWriteInternal_HidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternal(w, errors.New("pq: connection refused to host=10.0.0.1"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, "Internal Server Error", p.Title)
	assert.NotContains(t, p.Detail, "10.0.0.1")
}

func TestProblemDetail_Error(t *testing.T) {
	assert.Equal(t, "Conflict: iso_27001 is not wired", newProblem(http.StatusConflict, "iso_27001 is not wired").Error())
	assert.Equal(t, "Not Found", newProblem(http.StatusNotFound, "").Error())
}

func TestWriteDomainError_Mapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: %q", controlstate.ErrInvalidStatus, "done"), http.StatusBadRequest},
		{fmt.Errorf("%w: bad scope", evidence.ErrInvalidQuery), http.StatusBadRequest},
		{artifacts.ErrInvalidRef, http.StatusBadRequest},
		{fmt.Errorf("%w: iso_9001", readiness.ErrUnknownFramework), http.StatusNotFound},
		{fmt.Errorf("%w: 107.99", controlstate.ErrUnknownControl), http.StatusNotFound},
		{artifacts.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: iso_27001", readiness.ErrNotWired), http.StatusConflict},
		{controlstate.ErrNotActivated, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/x", nil)
		writeDomainError(w, r, tc.err)
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
		if tc.want < http.StatusInternalServerError {
			assert.Equal(t, tc.want, domainStatus(tc.err))
		}
	}
}
