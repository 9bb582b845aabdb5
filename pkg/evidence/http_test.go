package evidence

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfofmycity/vigilaero-platform/pkg/session"
)

func TestHTTPProvider_Summary(t *testing.T) {
	var gotAuth, gotPath string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"framework_id":"faa_89","scope":"drone","accepted_by_control":{"89.1":1},"pending_by_control":{"89.2":2},"rejected_by_control":{"89.3":1}}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL+"/", WithSession(session.Static("tok-1")), WithRateLimit(0, 0))
	s, err := p.Summary(context.Background(), Query{
		FrameworkID: "faa_89",
		Scope:       ScopeAsset,
		AssetID:     "drone-9",
		DateFrom:    "2026-03-01",
		DateTo:      "2026-03-31",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "/api/evidence/summary", gotPath)
	assert.Equal(t, []string{"faa_89"}, gotQuery["framework_id"])
	assert.Equal(t, []string{"drone-9"}, gotQuery["drone_id"])
	assert.Equal(t, []string{"2026-03-01"}, gotQuery["date_from"])
	assert.Equal(t, []string{"2026-03-31"}, gotQuery["date_to"])

	assert.Equal(t, 1, s.AcceptedFor("89.1"))
	assert.Equal(t, 2, s.PendingFor("89.2"))
	assert.Equal(t, 1, s.RejectedFor("89.3"))
}

func TestHTTPProvider_OrgScopeOmitsDrone(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, WithSession(session.Static("t")))
	s, err := p.Summary(context.Background(), Query{FrameworkID: "faa_107", Scope: ScopeOrg, AssetID: "drone-1"})
	require.NoError(t, err)

	_, hasDrone := gotQuery["drone_id"]
	assert.False(t, hasDrone)
	assert.Equal(t, "faa_107", s.FrameworkID)
}

func TestHTTPProvider_ContextSessionWins(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, WithSession(session.Static("fallback")))
	ctx := session.WithSession(context.Background(), session.Static("operator"))
	_, err := p.Summary(ctx, Query{FrameworkID: "faa_107"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer operator", gotAuth)
}

func TestHTTPProvider_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("framework_id") {
		case "unauthorized":
			http.Error(w, `{"detail":"bad token"}`, http.StatusUnauthorized)
		case "garbage":
			_, _ = w.Write([]byte(`{"accepted_by_control":{"A":-4}}`))
		}
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, WithSession(session.Static("t")))

	_, err := p.Summary(context.Background(), Query{FrameworkID: "unauthorized"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	assert.Contains(t, statusErr.Error(), "bad token")

	_, err = p.Summary(context.Background(), Query{FrameworkID: "garbage"})
	assert.ErrorIs(t, err, ErrInvalidSummary)

	_, err = p.Summary(context.Background(), Query{FrameworkID: ""})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestHTTPProvider_NoSession(t *testing.T) {
	p := NewHTTPProvider("http://127.0.0.1:1")
	_, err := p.Summary(context.Background(), Query{FrameworkID: "faa_107"})
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestHTTPProvider_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL,
		WithSession(session.Static("t")),
		WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}),
	)
	_, err := p.Summary(context.Background(), Query{FrameworkID: "faa_107"})
	assert.Error(t, err)
}

func companyToken(t *testing.T, company string) *session.Session {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, session.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ops-" + company},
		CompanyID:        company,
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	s, err := session.FromToken(raw)
	require.NoError(t, err)
	return s
}

func TestCachedHTTPProvider_PartitionsBySession(t *testing.T) {
	alpha := companyToken(t, "alpha")
	bravo := companyToken(t, "bravo")
	alphaAuth := "Bearer " + mustToken(t, alpha)

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Authorization") == alphaAuth {
			_, _ = w.Write([]byte(`{"accepted_by_control":{"107.1":1}}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := NewCachedProvider(NewHTTPProvider(srv.URL, WithRateLimit(0, 0)), NewMemoryCache(), time.Minute, nil)
	q := Query{FrameworkID: "faa_107"}

	got, err := p.Summary(session.WithSession(context.Background(), alpha), q)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AcceptedFor("107.1"))

	got, err = p.Summary(session.WithSession(context.Background(), bravo), q)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AcceptedFor("107.1"), "bravo must not see alpha's evidence")
	assert.Equal(t, 2, calls)

	_, err = p.Summary(session.WithSession(context.Background(), alpha), q)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "alpha is served from its own cache entry")

	_, err = p.Summary(context.Background(), q)
	assert.ErrorIs(t, err, session.ErrNoSession)
	assert.Equal(t, 2, calls)
}

func mustToken(t *testing.T, s *session.Session) string {
	t.Helper()
	tok, err := s.BearerToken()
	require.NoError(t, err)
	return tok
}
