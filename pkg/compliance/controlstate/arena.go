package controlstate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/catalog"
)

// ErrNotActivated is returned when a framework's state is used before Activate.
var ErrNotActivated = errors.New("framework not activated")

// Arena owns one StateMap per activated framework. Activation is explicit
// and seeds state once; later activations keep the existing map.
type Arena struct {
	mu       sync.RWMutex
	states   map[string]StateMap
	controls map[string]map[string]bool
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		states:   make(map[string]StateMap),
		controls: make(map[string]map[string]bool),
	}
}

// Activate seeds default state for frameworkID from its catalog. It reports
// whether seeding happened; a second call is a no-op.
func (a *Arena) Activate(frameworkID string, controls []catalog.ControlDefinition) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.states[frameworkID]; ok {
		return false
	}
	ids := make(map[string]bool, len(controls))
	for _, c := range controls {
		ids[c.ID] = true
	}
	a.controls[frameworkID] = ids
	a.states[frameworkID] = Initialize(controls)
	return true
}

// Active reports whether frameworkID has been activated.
func (a *Arena) Active(frameworkID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.states[frameworkID]
	return ok
}

// Snapshot returns a copy of the framework's state map.
func (a *Arena) Snapshot(frameworkID string) (StateMap, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	m, ok := a.states[frameworkID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", frameworkID, ErrNotActivated)
	}
	return m.Clone(), nil
}

// Patch merges p into one control of an activated framework and returns the
// resulting map. Control ids outside the activated catalog are rejected.
func (a *Arena) Patch(frameworkID, controlID string, p Patch) (StateMap, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.states[frameworkID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", frameworkID, ErrNotActivated)
	}
	if !a.controls[frameworkID][controlID] {
		return nil, fmt.Errorf("%s/%s: %w", frameworkID, controlID, ErrUnknownControl)
	}
	next, err := Apply(m, controlID, p)
	if err != nil {
		return nil, err
	}
	a.states[frameworkID] = next
	return next.Clone(), nil
}

// Load replaces the framework's state with a previously saved map, e.g. from
// a state file. Each saved entry is merged over the default through Apply, so
// text is normalized and a missing status keeps the default. Entries for ids
// outside the catalog are kept but never scored; catalog ids missing from
// saved are seeded with the default.
func (a *Arena) Load(frameworkID string, controls []catalog.ControlDefinition, saved StateMap) error {
	m := Initialize(controls)
	for id, st := range saved {
		p := Patch{EvidenceRef: StringPtr(st.EvidenceRef), Notes: StringPtr(st.Notes)}
		if st.Status != "" {
			p.Status = StatusPtr(st.Status)
		}
		next, err := Apply(m, id, p)
		if err != nil {
			return fmt.Errorf("control %s: %w", id, err)
		}
		m = next
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make(map[string]bool, len(controls))
	for _, c := range controls {
		ids[c.ID] = true
	}
	a.controls[frameworkID] = ids
	a.states[frameworkID] = m
	return nil
}
