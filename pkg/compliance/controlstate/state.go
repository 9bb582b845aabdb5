// Package controlstate holds operator-entered per-control state.
//
// State maps are values: Patch returns a new map and never mutates its input.
// Status values are normalized here, at the write boundary, so downstream
// scoring only ever sees the four known statuses.
package controlstate

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/catalog"
)

// Status is the operator's self-reported standing for a control.
type Status string

const (
	StatusMet     Status = "met"
	StatusPartial Status = "partial"
	StatusNotMet  Status = "not_met"
	StatusNA      Status = "na"
)

var (
	// ErrInvalidStatus is returned for any status outside the four known values.
	ErrInvalidStatus = errors.New("invalid control status")
	// ErrUnknownControl is returned when patching an id absent from the catalog.
	ErrUnknownControl = errors.New("unknown control")
)

// ParseStatus normalizes s (case, surrounding space, "-" / " " separators,
// "n/a") and returns the matching Status.
func ParseStatus(s string) (Status, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer("-", "_", " ", "_").Replace(v)
	switch v {
	case "met":
		return StatusMet, nil
	case "partial":
		return StatusPartial, nil
	case "not_met", "notmet":
		return StatusNotMet, nil
	case "na", "n/a":
		return StatusNA, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Valid reports whether st is one of the known statuses.
func (st Status) Valid() bool {
	switch st {
	case StatusMet, StatusPartial, StatusNotMet, StatusNA:
		return true
	}
	return false
}

// UnmarshalText implements encoding.TextUnmarshaler so JSON and YAML inputs
// are normalized on decode.
func (st *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*st = parsed
	return nil
}

// ControlState is the mutable record for one control.
type ControlState struct {
	Status      Status `json:"status" yaml:"status"`
	EvidenceRef string `json:"evidenceRef" yaml:"evidence_ref"`
	Notes       string `json:"notes" yaml:"notes"`
}

// Default is the seeded state for every control: partial, no reference, no notes.
func Default() ControlState {
	return ControlState{Status: StatusPartial}
}

// SoftGated reports whether a self-reported MET lacks an evidence reference.
// It is a display flag and never feeds the numeric score.
func (c ControlState) SoftGated() bool {
	return c.Status == StatusMet && strings.TrimSpace(c.EvidenceRef) == ""
}

// StateMap maps control id to its state.
type StateMap map[string]ControlState

// Initialize returns one default state per control in the catalog.
func Initialize(controls []catalog.ControlDefinition) StateMap {
	m := make(StateMap, len(controls))
	for _, c := range controls {
		m[c.ID] = Default()
	}
	return m
}

// Clone returns an independent copy of the map.
func (m StateMap) Clone() StateMap {
	out := make(StateMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Lookup returns the state for id, falling back to Default for ids the map
// has not seen.
func (m StateMap) Lookup(id string) ControlState {
	if st, ok := m[id]; ok {
		return st
	}
	return Default()
}

// Patch names the fields to merge into a single control. Nil fields are left
// untouched.
type Patch struct {
	Status      *Status `json:"status,omitempty"`
	EvidenceRef *string `json:"evidenceRef,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

// Empty reports whether the patch names no fields.
func (p Patch) Empty() bool {
	return p.Status == nil && p.EvidenceRef == nil && p.Notes == nil
}

// Validate rejects a patch carrying an unknown status.
func (p Patch) Validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, string(*p.Status))
	}
	return nil
}

// Apply returns a new map in which only controlID is merged with p. The input
// map is not modified. Free text is stored NFC-normalized.
func Apply(m StateMap, controlID string, p Patch) (StateMap, error) {
	if err := p.Validate(); err != nil {
		return m, err
	}

	out := m.Clone()
	st := m.Lookup(controlID)
	if p.Status != nil {
		st.Status = *p.Status
	}
	if p.EvidenceRef != nil {
		st.EvidenceRef = norm.NFC.String(*p.EvidenceRef)
	}
	if p.Notes != nil {
		st.Notes = norm.NFC.String(*p.Notes)
	}
	out[controlID] = st
	return out, nil
}

// StatusPtr and StringPtr build Patch fields inline.
func StatusPtr(s Status) *Status { return &s }

func StringPtr(s string) *string { return &s }
