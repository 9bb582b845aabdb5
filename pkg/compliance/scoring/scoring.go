// Package scoring computes framework readiness from a control catalog,
// operator-entered control state, and an evidence review summary.
//
// Every function here is pure: no I/O, no shared state, no logging. Given
// the same inputs the output is identical, so callers may recompute on every
// change.
//
// The numeric score is evidence-driven. A control counts as met only when
// the review workflow has accepted at least one artifact for it; the
// operator's self-reported status decides applicability (N/A) and the
// display-only soft-gate flag, nothing else.
package scoring

import (
	"math"

	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/catalog"
	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/controlstate"
	"github.com/wolfofmycity/vigilaero-platform/pkg/evidence"
)

// Bucket is the readiness status derived from the score.
type Bucket string

const (
	BucketAuditReady Bucket = "audit_ready"
	BucketPartial    Bucket = "partial"
	BucketInProgress Bucket = "in_progress"
	BucketNeedsWork  Bucket = "needs_work"
)

// Lower edges of each bucket, inclusive.
const (
	AuditReadyThreshold = 95
	PartialThreshold    = 75
	InProgressThreshold = 50
)

// BucketFor maps a score to its bucket, evaluating thresholds high to low.
func BucketFor(score int) Bucket {
	switch {
	case score >= AuditReadyThreshold:
		return BucketAuditReady
	case score >= PartialThreshold:
		return BucketPartial
	case score >= InProgressThreshold:
		return BucketInProgress
	default:
		return BucketNeedsWork
	}
}

// FrameworkSummary is the computed readiness projection. It is never stored.
type FrameworkSummary struct {
	Score             int            `json:"score"`
	Met               int            `json:"met"`
	Requirements      int            `json:"requirements"`
	Status            Bucket         `json:"status"`
	EvidenceCoverage  int            `json:"evidenceCoverage"`
	AcceptedByControl map[string]int `json:"accepted_by_control"`
	PendingByControl  map[string]int `json:"pending_by_control"`
	RejectedByControl map[string]int `json:"rejected_by_control"`
	InReview          int            `json:"inReview"`
}

// Classification is the evidence-driven outcome for one control.
type Classification string

const (
	ClassMet           Classification = "met"
	ClassInReview      Classification = "in_review"
	ClassNotMet        Classification = "not_met"
	ClassNotApplicable Classification = "not_applicable"
)

// Applicable reports whether a control in this state counts toward the score.
func Applicable(st controlstate.ControlState) bool {
	return st.Status != controlstate.StatusNA
}

// Classify returns the evidence outcome for an applicable control: accepted
// evidence wins, then pending, otherwise not met.
func Classify(accepted, pending int) Classification {
	switch {
	case accepted >= 1:
		return ClassMet
	case pending >= 1:
		return ClassInReview
	default:
		return ClassNotMet
	}
}

// ComputeFrameworkSummary scores one framework. Enumeration follows the
// catalog; state entries for ids outside it are ignored and catalog ids with
// no state entry are treated as applicable.
func ComputeFrameworkSummary(controls []catalog.ControlDefinition, state controlstate.StateMap, ev evidence.Summary) FrameworkSummary {
	ev = ev.Normalized()

	var requirements, met, inReview int
	for _, c := range controls {
		if !Applicable(state.Lookup(c.ID)) {
			continue
		}
		requirements++
		switch Classify(ev.AcceptedFor(c.ID), ev.PendingFor(c.ID)) {
		case ClassMet:
			met++
		case ClassInReview:
			inReview++
		}
	}

	out := FrameworkSummary{
		AcceptedByControl: ev.Accepted,
		PendingByControl:  ev.Pending,
		RejectedByControl: ev.Rejected,
	}
	if requirements == 0 {
		// Nothing to assess yet, which is not the same as compliant.
		out.Status = BucketInProgress
		return out
	}

	coverage := int(math.Round(float64(met) / float64(requirements) * 100))
	out.Score = coverage
	out.Met = met
	out.Requirements = requirements
	out.EvidenceCoverage = coverage
	out.Status = BucketFor(coverage)
	out.InReview = inReview
	return out
}
