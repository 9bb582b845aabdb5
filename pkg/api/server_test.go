package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfofmycity/vigilaero-platform/pkg/artifacts"
	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/catalog"
	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/controlstate"
	"github.com/wolfofmycity/vigilaero-platform/pkg/evidence"
	"github.com/wolfofmycity/vigilaero-platform/pkg/observability"
	"github.com/wolfofmycity/vigilaero-platform/pkg/readiness"
	"github.com/wolfofmycity/vigilaero-platform/pkg/report"
	"github.com/wolfofmycity/vigilaero-platform/pkg/session"
)

var faa107Evidence = evidence.Summary{
	Accepted: map[string]int{"107.1": 2, "107.2": 1},
	Pending:  map[string]int{"107.3": 1},
	Rejected: map[string]int{"107.4": 1},
}

// stubProvider serves faa107Evidence and remembers the last call.
type stubProvider struct {
	mu      sync.Mutex
	fail    bool
	last    evidence.Query
	session *session.Session
}

func (p *stubProvider) Summary(ctx context.Context, q evidence.Query) (evidence.Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = q
	p.session, _ = session.FromContext(ctx)
	if p.fail {
		return evidence.Summary{}, errors.New("backend unreachable")
	}
	if q.FrameworkID == catalog.FAA107 {
		return faa107Evidence, nil
	}
	return evidence.Summary{}, nil
}

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *stubProvider) {
	t.Helper()
	provider := &stubProvider{}
	c := readiness.NewController(catalog.Default(), provider)
	ts := httptest.NewServer(NewServer(c, opts...).Handler())
	t.Cleanup(ts.Close)
	return ts, provider
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, rdr)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := do(t, ts, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	assert.Equal(t, map[string]string{"status": "ok"}, decodeBody[map[string]string](t, resp))
}

func TestFrameworks_Overview(t *testing.T) {
	ts, provider := newTestServer(t)
	resp := do(t, ts, http.MethodGet, "/api/compliance/frameworks?date_from=2026-01-01", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[struct {
		Frameworks []readiness.Card `json:"frameworks"`
	}](t, resp)
	require.Len(t, body.Frameworks, 4)

	faa := body.Frameworks[0]
	assert.Equal(t, catalog.FAA107, faa.ID)
	assert.True(t, faa.Active)
	assert.Equal(t, 13, faa.Score)
	assert.Equal(t, 15, faa.Requirements)
	assert.Equal(t, 1, faa.InReview)

	iso := body.Frameworks[3]
	assert.False(t, iso.Wired)
	assert.Equal(t, 15, iso.Requirements)
	assert.Equal(t, 0, iso.Score)

	assert.Equal(t, "2026-01-01", provider.last.DateFrom)
}

func TestFrameworks_BadQuery(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := do(t, ts, http.MethodGet, "/api/compliance/frameworks?scope=fleet", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestControls(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := do(t, ts, http.MethodGet, "/api/compliance/frameworks/faa_107/controls", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[struct {
		Framework readiness.FrameworkInfo     `json:"framework"`
		Controls  []catalog.ControlDefinition `json:"controls"`
	}](t, resp)
	assert.Equal(t, "FAA Part 107", body.Framework.Name)
	assert.Len(t, body.Controls, 15)
	assert.Equal(t, "107.1", body.Controls[0].ID)

	resp = do(t, ts, http.MethodGet, "/api/compliance/frameworks/iso_27001/controls", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(mustRead(t, resp)), `"controls":[]`)

	resp = do(t, ts, http.MethodGet, "/api/compliance/frameworks/nope/controls", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func mustRead(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return b
}

func TestSummary(t *testing.T) {
	ts, provider := newTestServer(t)

	resp := do(t, ts, http.MethodGet, "/api/compliance/frameworks/faa_107/summary?scope=asset&asset_id=drone-9", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeBody[readiness.Snapshot](t, resp)
	assert.Equal(t, 13, snap.Summary.Score)
	assert.Equal(t, 2, snap.Summary.Met)
	assert.False(t, snap.Degraded)
	assert.Equal(t, evidence.ScopeAsset, provider.last.Scope)
	assert.Equal(t, "drone-9", provider.last.AssetID)
}

func TestSummary_Errors(t *testing.T) {
	ts, _ := newTestServer(t)
	cases := []struct {
		path string
		want int
	}{
		{"/api/compliance/frameworks/nope/summary", http.StatusNotFound},
		{"/api/compliance/frameworks/iso_27001/summary", http.StatusConflict},
		{"/api/compliance/frameworks/faa_107/summary?scope=asset", http.StatusBadRequest},
		{"/api/compliance/frameworks/faa_107/summary?date_to=03/01", http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := do(t, ts, http.MethodGet, tc.path, "")
		assert.Equal(t, tc.want, resp.StatusCode, tc.path)
		assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"), tc.path)
	}
}

func TestSummary_DegradedStillServes(t *testing.T) {
	ts, provider := newTestServer(t)
	resp := do(t, ts, http.MethodGet, "/api/compliance/frameworks/faa_107/summary", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	provider.mu.Lock()
	provider.fail = true
	provider.mu.Unlock()

	resp = do(t, ts, http.MethodGet, "/api/compliance/frameworks/faa_107/summary", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeBody[readiness.Snapshot](t, resp)
	assert.True(t, snap.Degraded)
	assert.Equal(t, readiness.DegradedNotice, snap.Notice)
	assert.Equal(t, 13, snap.Summary.Score, "last known evidence is kept")
}

func TestUpdateControl(t *testing.T) {
	ts, _ := newTestServer(t)
	do(t, ts, http.MethodGet, "/api/compliance/frameworks/faa_107/summary", "")

	resp := do(t, ts, http.MethodPatch, "/api/compliance/frameworks/faa_107/controls/107.5",
		`{"status":"N/A","notes":"no night ops"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeBody[readiness.Snapshot](t, resp)
	assert.Equal(t, 14, snap.Summary.Requirements)
	assert.Equal(t, 14, snap.Summary.Score)

	resp = do(t, ts, http.MethodGet, "/api/compliance/frameworks/faa_107/state", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decodeBody[controlstate.StateMap](t, resp)
	assert.Equal(t, controlstate.StatusNA, state["107.5"].Status)
	assert.Equal(t, "no night ops", state["107.5"].Notes)
	assert.Equal(t, controlstate.StatusPartial, state["107.6"].Status)
}

func TestUpdateControl_Errors(t *testing.T) {
	ts, _ := newTestServer(t)
	cases := []struct {
		path, body string
		want       int
	}{
		{"/api/compliance/frameworks/faa_107/controls/107.1", `{"status":"done"}`, http.StatusBadRequest},
		{"/api/compliance/frameworks/faa_107/controls/107.1", `{}`, http.StatusBadRequest},
		{"/api/compliance/frameworks/faa_107/controls/107.1", `{"colour":"red"}`, http.StatusBadRequest},
		{"/api/compliance/frameworks/faa_107/controls/107.1", `{"status":`, http.StatusBadRequest},
		{"/api/compliance/frameworks/faa_107/controls/107.99", `{"status":"met"}`, http.StatusNotFound},
		{"/api/compliance/frameworks/nope/controls/1", `{"status":"met"}`, http.StatusNotFound},
		{"/api/compliance/frameworks/iso_27001/controls/A.5", `{"status":"met"}`, http.StatusConflict},
	}
	for _, tc := range cases {
		resp := do(t, ts, http.MethodPatch, tc.path, tc.body)
		assert.Equal(t, tc.want, resp.StatusCode, "%s %s", tc.path, tc.body)
	}
}

func TestExport_Download(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	ts, _ := newTestServer(t, WithClock(func() time.Time { return now }))

	resp := do(t, ts, http.MethodPost, "/api/compliance/frameworks/faa_107/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "VigilAero-Compliance-Report-2026-03-02.json")
	assert.Empty(t, resp.Header.Get("X-Artifact-Ref"))

	pkg, err := report.Unmarshal(mustRead(t, resp))
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02T08:30:00Z", pkg.GeneratedAt)
	assert.Equal(t, 13, pkg.Summary.Score)
}

func TestExport_PublishAndFetch(t *testing.T) {
	store, err := artifacts.NewFileStore(filepath.Join(t.TempDir(), "reports"))
	require.NoError(t, err)
	ts, _ := newTestServer(t, WithArtifactStore(store))

	resp := do(t, ts, http.MethodPost, "/api/compliance/frameworks/faa_107/export?scope=org", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ref := resp.Header.Get("X-Artifact-Ref")
	require.True(t, strings.HasPrefix(ref, "sha256:"))
	exported := mustRead(t, resp)

	got := do(t, ts, http.MethodGet, "/api/compliance/exports/"+ref, "")
	require.Equal(t, http.StatusOK, got.StatusCode)
	assert.True(t, bytes.Equal(exported, mustRead(t, got)))

	missing := do(t, ts, http.MethodGet, "/api/compliance/exports/"+artifacts.Ref([]byte("other")), "")
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	bad := do(t, ts, http.MethodGet, "/api/compliance/exports/sha256:xyz", "")
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestExport_NoStore(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := do(t, ts, http.MethodGet, "/api/compliance/exports/"+artifacts.Ref([]byte("x")), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionReachesProvider(t *testing.T) {
	ts, provider := newTestServer(t)
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/compliance/frameworks/faa_107/summary", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", bearer(t, time.Now().Add(time.Hour)))
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	provider.mu.Lock()
	defer provider.mu.Unlock()
	require.NotNil(t, provider.session)
	assert.Equal(t, "pilot-7", provider.session.Subject())
}

func TestRateLimitedServer(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	defer rl.Stop()
	ts, _ := newTestServer(t, WithRateLimiter(rl))

	assert.Equal(t, http.StatusOK, do(t, ts, http.MethodGet, "/health", "").StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, do(t, ts, http.MethodGet, "/health", "").StatusCode)
}

func TestTrackedServer(t *testing.T) {
	obs, err := observability.New(context.Background(), observability.DefaultConfig())
	require.NoError(t, err)
	ts, _ := newTestServer(t, WithObservability(obs))

	assert.Equal(t, http.StatusOK, do(t, ts, http.MethodGet, "/api/compliance/frameworks/faa_107/summary", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, ts, http.MethodGet, "/api/compliance/frameworks/nope/summary", "").StatusCode)
}
