package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfofmycity/vigilaero-platform/pkg/artifacts"
	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/catalog"
	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/controlstate"
	"github.com/wolfofmycity/vigilaero-platform/pkg/evidence"
	"github.com/wolfofmycity/vigilaero-platform/pkg/observability"
	"github.com/wolfofmycity/vigilaero-platform/pkg/readiness"
	"github.com/wolfofmycity/vigilaero-platform/pkg/report"
)

const maxPatchBytes = 64 << 10

// Server exposes a readiness controller over HTTP.
type Server struct {
	controller *readiness.Controller
	store      artifacts.Store
	obs        *observability.Provider
	limiter    *RateLimiter
	origins    []string
	logger     *slog.Logger
	clock      func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithArtifactStore enables publishing and retrieving audit packages.
func WithArtifactStore(store artifacts.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithObservability records a span and RED metrics per route.
func WithObservability(p *observability.Provider) Option {
	return func(s *Server) { s.obs = p }
}

func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// WithAllowedOrigins restricts CORS to the listed origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used for export timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) { s.clock = clock }
}

// NewServer creates a server for controller.
func NewServer(controller *readiness.Controller, opts ...Option) *Server {
	s := &Server{
		controller: controller,
		logger:     slog.Default(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "api")
	return s
}

// Handler returns the routed API with its middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /api/compliance/frameworks", s.track("frameworks.list", s.handleFrameworks))
	mux.Handle("GET /api/compliance/frameworks/{id}/controls", s.track("frameworks.controls", s.handleControls))
	mux.Handle("GET /api/compliance/frameworks/{id}/summary", s.track("frameworks.summary", s.handleSummary))
	mux.Handle("GET /api/compliance/frameworks/{id}/state", s.track("frameworks.state", s.handleState))
	mux.Handle("PATCH /api/compliance/frameworks/{id}/controls/{controlId}", s.track("controls.update", s.handleUpdateControl))
	mux.Handle("POST /api/compliance/frameworks/{id}/export", s.track("frameworks.export", s.handleExport))
	mux.Handle("GET /api/compliance/exports/{ref}", s.track("exports.get", s.handleGetExport))

	var h http.Handler = mux
	h = SessionMiddleware(h)
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	h = CORSMiddleware(s.origins)(h)
	h = AccessLog(s.logger)(h)
	return RequestIDMiddleware(h)
}

func (s *Server) track(name string, fn http.HandlerFunc) http.Handler {
	if s.obs == nil {
		return fn
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, done := s.obs.TrackOperation(r.Context(), "api."+name,
			attribute.String("http.route", r.Pattern))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r.WithContext(ctx))
		var err error
		if rec.status >= http.StatusInternalServerError {
			err = fmt.Errorf("%s: status %d", name, rec.status)
		}
		done(err)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// queryFrom reads scope, asset_id, date_from and date_to.
func queryFrom(frameworkID string, v url.Values) evidence.Query {
	return evidence.Query{
		FrameworkID: frameworkID,
		Scope:       evidence.Scope(v.Get("scope")),
		AssetID:     v.Get("asset_id"),
		DateFrom:    v.Get("date_from"),
		DateTo:      v.Get("date_to"),
	}
}

func (s *Server) handleFrameworks(w http.ResponseWriter, r *http.Request) {
	q := queryFrom("", r.URL.Query())
	// Overview fills the framework id per card; validate the rest up front.
	probe := q
	probe.FrameworkID = "overview"
	if err := probe.Validate(); err != nil {
		writeDomainError(w, r, err)
		return
	}
	cards, err := s.controller.Overview(r.Context(), q)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"frameworks": cards})
}

func (s *Server) handleControls(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f, ok := s.controller.Registry().Framework(id)
	if !ok {
		writeDomainError(w, r, fmt.Errorf("%w: %s", readiness.ErrUnknownFramework, id))
		return
	}
	controls := f.Controls
	if controls == nil {
		controls = []catalog.ControlDefinition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"framework": readiness.FrameworkInfo{ID: f.ID, Name: f.Name, Version: f.Version, Wired: f.Wired},
		"controls":  controls,
	})
}

// refresh activates id and fetches evidence for the request's query.
func (s *Server) refresh(r *http.Request, id string) (readiness.Snapshot, error) {
	if _, err := s.controller.Activate(id); err != nil {
		return readiness.Snapshot{}, err
	}
	return s.controller.Refresh(r.Context(), id, queryFrom(id, r.URL.Query()))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	snap, err := s.refresh(r, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.controller.Activate(id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	state, err := s.controller.State(id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleUpdateControl(w http.ResponseWriter, r *http.Request) {
	id, controlID := r.PathValue("id"), r.PathValue("controlId")

	var p controlstate.Patch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPatchBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, controlstate.ErrInvalidStatus) {
			writeDomainError(w, r, err)
			return
		}
		WriteErrorR(w, r, http.StatusBadRequest, "malformed patch body: "+err.Error())
		return
	}
	if p.Empty() {
		WriteErrorR(w, r, http.StatusBadRequest, "patch names no fields")
		return
	}

	if _, err := s.controller.Activate(id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	snap, err := s.controller.UpdateControl(r.Context(), id, controlID, p)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "control updated",
		"framework_id", id, "control_id", controlID, "request_id", GetRequestID(r.Context()))
	writeJSON(w, http.StatusOK, snap)
}

// handleExport refreshes, seals an audit package and returns it as a
// download. With a store configured the package is also published and its
// ref returned in X-Artifact-Ref.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap, err := s.refresh(r, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	now := s.clock()
	pkg, err := report.NewBuilder(s.controller.Registry()).
		WithClock(func() time.Time { return now }).
		Build(snap)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	data, err := report.Marshal(pkg)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	status := http.StatusOK
	if s.store != nil {
		ref, err := s.store.Put(r.Context(), data)
		if err != nil {
			WriteInternal(w, fmt.Errorf("publish audit package: %w", err))
			return
		}
		w.Header().Set("X-Artifact-Ref", ref)
		status = http.StatusCreated
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(now)))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		WriteErrorR(w, r, http.StatusNotFound, "artifact storage is not configured")
		return
	}
	data, err := s.store.Get(r.Context(), r.PathValue("ref"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if _, err := report.Unmarshal(data); err != nil {
		WriteInternal(w, fmt.Errorf("stored audit package: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
