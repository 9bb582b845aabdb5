// Package evidence defines the Evidence Summary contract consumed by the
// readiness scorer and the providers that supply it.
//
// A Summary holds aggregate review outcomes per control: how many evidence
// artifacts were accepted, are pending review, or were rejected. It is
// independent ground truth from the review workflow, never derived from
// operator-entered control state.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Summary is the per-control evidence review aggregate for one framework.
// Absent keys mean a count of zero.
type Summary struct {
	FrameworkID string         `json:"framework_id,omitempty"`
	Scope       string         `json:"scope,omitempty"`
	Accepted    map[string]int `json:"accepted_by_control"`
	Pending     map[string]int `json:"pending_by_control"`
	Rejected    map[string]int `json:"rejected_by_control"`
	Total       map[string]int `json:"total_by_control,omitempty"`
}

// AcceptedFor returns the accepted count for a control.
func (s Summary) AcceptedFor(id string) int { return s.Accepted[id] }

// PendingFor returns the pending count for a control.
func (s Summary) PendingFor(id string) int { return s.Pending[id] }

// RejectedFor returns the rejected count for a control.
func (s Summary) RejectedFor(id string) int { return s.Rejected[id] }

// Normalized returns a copy with nil count maps replaced by empty ones.
func (s Summary) Normalized() Summary {
	return Summary{
		FrameworkID: s.FrameworkID,
		Scope:       s.Scope,
		Accepted:    cloneCounts(s.Accepted),
		Pending:     cloneCounts(s.Pending),
		Rejected:    cloneCounts(s.Rejected),
		Total:       cloneTotal(s.Total),
	}
}

func cloneCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneTotal(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	return cloneCounts(in)
}

// Scope selects organization-wide or single-asset evidence.
type Scope string

const (
	ScopeOrg   Scope = "org"
	ScopeAsset Scope = "asset"
)

// ErrInvalidQuery is returned for malformed evidence queries.
var ErrInvalidQuery = errors.New("invalid evidence query")

// DateLayout is the calendar-day format used for query bounds.
const DateLayout = "2006-01-02"

// Query selects the evidence a summary aggregates.
type Query struct {
	FrameworkID string `json:"framework_id"`
	Scope       Scope  `json:"scope,omitempty"`
	AssetID     string `json:"asset_id,omitempty"`
	// DateFrom and DateTo are optional UTC calendar days (YYYY-MM-DD). Both
	// bounds are inclusive; DateTo covers the whole day.
	DateFrom string `json:"date_from,omitempty"`
	DateTo   string `json:"date_to,omitempty"`
}

// Validate checks the query and returns ErrInvalidQuery on the first problem.
func (q Query) Validate() error {
	if q.FrameworkID == "" {
		return fmt.Errorf("%w: framework id is required", ErrInvalidQuery)
	}
	switch q.Scope {
	case "", ScopeOrg:
	case ScopeAsset:
		if q.AssetID == "" {
			return fmt.Errorf("%w: asset scope requires an asset id", ErrInvalidQuery)
		}
	default:
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidQuery, q.Scope)
	}
	from, to, err := q.Bounds()
	if err != nil {
		return err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return fmt.Errorf("%w: date_to %s precedes date_from %s", ErrInvalidQuery, q.DateTo, q.DateFrom)
	}
	return nil
}

// AssetScoped reports whether the query narrows evidence to one asset.
func (q Query) AssetScoped() bool {
	return q.Scope == ScopeAsset && q.AssetID != ""
}

// Bounds returns the UTC instants covered by the date filters. The upper
// bound is the last nanosecond of DateTo. Zero values mean unbounded.
func (q Query) Bounds() (from, to time.Time, err error) {
	if q.DateFrom != "" {
		from, err = time.ParseInLocation(DateLayout, q.DateFrom, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: date_from: %v", ErrInvalidQuery, err)
		}
	}
	if q.DateTo != "" {
		day, perr := time.ParseInLocation(DateLayout, q.DateTo, time.UTC)
		if perr != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: date_to: %v", ErrInvalidQuery, perr)
		}
		to = day.Add(24*time.Hour - time.Nanosecond)
	}
	return from, to, nil
}

// Key is a stable cache key for the query.
func (q Query) Key() string {
	scope := q.Scope
	if scope == "" {
		scope = ScopeOrg
	}
	asset := ""
	if scope == ScopeAsset {
		asset = q.AssetID
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s", q.FrameworkID, scope, asset, q.DateFrom, q.DateTo)
}

// Provider supplies evidence summaries.
type Provider interface {
	Summary(ctx context.Context, q Query) (Summary, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, q Query) (Summary, error)

// Summary implements Provider.
func (f ProviderFunc) Summary(ctx context.Context, q Query) (Summary, error) {
	return f(ctx, q)
}

// Static serves fixed summaries keyed by framework id. Unknown frameworks get
// an empty summary.
type Static map[string]Summary

// Summary implements Provider.
func (s Static) Summary(_ context.Context, q Query) (Summary, error) {
	if err := q.Validate(); err != nil {
		return Summary{}, err
	}
	out := s[q.FrameworkID].Normalized()
	out.FrameworkID = q.FrameworkID
	return out, nil
}
