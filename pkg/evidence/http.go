package evidence

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wolfofmycity/vigilaero-platform/pkg/session"
)

const summaryPath = "/api/evidence/summary"

// HTTPProvider fetches summaries from the evidence backend.
//
// Requests carry the bearer token of the session found in the request
// context, falling back to the provider's own session.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
	session    *session.Session
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// HTTPOption configures an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) { p.httpClient = c }
}

// WithSession sets the fallback session for calls without one in context.
func WithSession(s *session.Session) HTTPOption {
	return func(p *HTTPProvider) { p.session = s }
}

// WithRateLimit bounds outgoing requests. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) HTTPOption {
	return func(p *HTTPProvider) {
		if rps <= 0 {
			p.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the provider logger.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(p *HTTPProvider) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewHTTPProvider creates a provider for the backend at baseURL.
func NewHTTPProvider(baseURL string, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
		logger:     slog.Default().With("component", "evidence.http"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Summary implements Provider.
func (p *HTTPProvider) Summary(ctx context.Context, q Query) (Summary, error) {
	if err := q.Validate(); err != nil {
		return Summary{}, err
	}

	sess, token, err := p.resolve(ctx)
	if err != nil {
		return Summary{}, err
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return Summary{}, fmt.Errorf("evidence summary rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.summaryURL(q), nil)
	if err != nil {
		return Summary{}, fmt.Errorf("build evidence request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch evidence summary: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	p.logger.DebugContext(ctx, "evidence summary fetched",
		"framework", q.FrameworkID,
		"identity", sess.Identity(),
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Summary{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	s, err := DecodeSummary(resp.Body)
	if err != nil {
		return Summary{}, err
	}
	if s.FrameworkID == "" {
		s.FrameworkID = q.FrameworkID
	}
	return s, nil
}

// resolve picks the session for ctx: the one attached to the request, else
// the provider's own. An absent or expired session is an error.
func (p *HTTPProvider) resolve(ctx context.Context) (*session.Session, string, error) {
	sess, ok := session.FromContext(ctx)
	if !ok {
		sess = p.session
	}
	token, err := sess.BearerToken()
	if err != nil {
		return nil, "", fmt.Errorf("evidence summary: %w", err)
	}
	return sess, token, nil
}

// CacheScope implements Scoper. Summaries are partitioned by the identity of
// the session that fetched them.
func (p *HTTPProvider) CacheScope(ctx context.Context) (string, error) {
	sess, _, err := p.resolve(ctx)
	if err != nil {
		return "", err
	}
	return sess.Identity(), nil
}

func (p *HTTPProvider) summaryURL(q Query) string {
	v := url.Values{}
	v.Set("framework_id", q.FrameworkID)
	if q.AssetScoped() {
		v.Set("drone_id", q.AssetID)
	}
	if q.DateFrom != "" {
		v.Set("date_from", q.DateFrom)
	}
	if q.DateTo != "" {
		v.Set("date_to", q.DateTo)
	}
	return p.baseURL + summaryPath + "?" + v.Encode()
}

// StatusError reports a non-200 response from the evidence backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("evidence backend returned %d", e.Code)
	}
	return fmt.Sprintf("evidence backend returned %d: %s", e.Code, e.Body)
}
