package readiness

import (
	"context"

	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/scoring"
	"github.com/wolfofmycity/vigilaero-platform/pkg/evidence"
)

// Card is the per-framework tile of the compliance overview.
type Card struct {
	FrameworkInfo
	Active       bool           `json:"active"`
	Score        int            `json:"score"`
	Met          int            `json:"met"`
	Requirements int            `json:"requirements"`
	Status       scoring.Bucket `json:"status"`
	InReview     int            `json:"inReview"`
	Degraded     bool           `json:"degraded"`
}

// Overview returns one card per registered framework in registry order.
//
// Wired frameworks are activated if needed and refreshed with q's scope and
// date range. Placeholders report their declared requirement count with a
// zero score and in_progress status.
func (c *Controller) Overview(ctx context.Context, q evidence.Query) ([]Card, error) {
	frameworks := c.registry.List()
	cards := make([]Card, 0, len(frameworks))
	for _, f := range frameworks {
		if !f.Wired {
			cards = append(cards, Card{
				FrameworkInfo: infoOf(f),
				Requirements:  f.DeclaredRequirements,
				Status:        scoring.BucketInProgress,
			})
			continue
		}

		if _, err := c.Activate(f.ID); err != nil {
			return nil, err
		}
		fq := q
		fq.FrameworkID = f.ID
		snap, err := c.Refresh(ctx, f.ID, fq)
		if err != nil {
			return nil, err
		}
		cards = append(cards, Card{
			FrameworkInfo: snap.Framework,
			Active:        true,
			Score:         snap.Summary.Score,
			Met:           snap.Summary.Met,
			Requirements:  snap.Summary.Requirements,
			Status:        snap.Summary.Status,
			InReview:      snap.Summary.InReview,
			Degraded:      snap.Degraded,
		})
	}
	return cards, nil
}
