package scoring

import (
	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/catalog"
	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/controlstate"
	"github.com/wolfofmycity/vigilaero-platform/pkg/evidence"
)

// ControlView joins one control definition with its state and evidence.
type ControlView struct {
	Definition     catalog.ControlDefinition `json:"definition"`
	State          controlstate.ControlState `json:"state"`
	Classification Classification            `json:"classification"`
	// SoftGated flags a self-reported MET with no evidence reference. It is
	// shown to the operator and has no effect on the score.
	SoftGated bool `json:"softGated"`
	Accepted  int  `json:"accepted"`
	Pending   int  `json:"pending"`
	Rejected  int  `json:"rejected"`
}

// Assessment is the summary together with its per-control breakdown.
type Assessment struct {
	Summary  FrameworkSummary `json:"summary"`
	Controls []ControlView    `json:"controls"`
}

// JoinControls returns the read-only joined view in catalog order.
func JoinControls(controls []catalog.ControlDefinition, state controlstate.StateMap, ev evidence.Summary) []ControlView {
	views := make([]ControlView, 0, len(controls))
	for _, c := range controls {
		st := state.Lookup(c.ID)
		accepted, pending := ev.AcceptedFor(c.ID), ev.PendingFor(c.ID)

		class := ClassNotApplicable
		if Applicable(st) {
			class = Classify(accepted, pending)
		}
		views = append(views, ControlView{
			Definition:     c,
			State:          st,
			Classification: class,
			SoftGated:      st.SoftGated(),
			Accepted:       accepted,
			Pending:        pending,
			Rejected:       ev.RejectedFor(c.ID),
		})
	}
	return views
}

// Assess computes the summary and the joined view in one value.
func Assess(controls []catalog.ControlDefinition, state controlstate.StateMap, ev evidence.Summary) Assessment {
	return Assessment{
		Summary:  ComputeFrameworkSummary(controls, state, ev),
		Controls: JoinControls(controls, state, ev),
	}
}
