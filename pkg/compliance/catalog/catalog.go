// Package catalog holds the regulatory control catalogs VigilAero scores against.
//
// Catalogs are process-wide constants: they are built once, handed out as
// copies, and never mutated at runtime. Additional frameworks may be loaded
// from YAML documents at startup (see LoadDocument).
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gowebpki/jcs"
)

// ControlDefinition is one auditable requirement within a framework.
type ControlDefinition struct {
	ID            string   `json:"id" yaml:"id"`
	Title         string   `json:"title" yaml:"title"`
	Intent        string   `json:"intent" yaml:"intent"`
	EvidenceHints []string `json:"evidenceHints" yaml:"evidence_hints"`
	// Weight is carried in the persisted catalog schema but does not feed
	// the readiness score. Every control counts equally.
	Weight float64 `json:"weight" yaml:"weight"`
}

// Framework is a named compliance standard and its ordered control catalog.
type Framework struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
	// Wired reports whether the framework supports live editing and scoring.
	// Placeholders are declared with zero controls.
	Wired bool `json:"wired"`
	// DeclaredRequirements is the requirement count advertised for
	// placeholders. For wired frameworks it equals len(Controls).
	DeclaredRequirements int                 `json:"declaredRequirements"`
	Controls             []ControlDefinition `json:"controls"`
}

// Framework ids shipped with the platform.
const (
	FAA107      = "faa_107"
	FAA89       = "faa_89"
	EASA2019947 = "easa_2019_947"
	ISO27001    = "iso_27001"
)

// Registry is an ordered, read-mostly set of frameworks.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Framework
}

// NewRegistry creates a registry seeded with the given frameworks, in order.
func NewRegistry(frameworks ...Framework) *Registry {
	r := &Registry{byID: make(map[string]Framework)}
	for _, f := range frameworks {
		r.put(f)
	}
	return r
}

// Default returns a registry with the shipped FAA catalogs and the
// declared-but-unwired placeholders.
func Default() *Registry {
	return NewRegistry(
		faa107Framework(),
		faa89Framework(),
		placeholder(EASA2019947, "EASA 2019/947", 15),
		placeholder(ISO27001, "ISO 27001", 15),
	)
}

func placeholder(id, name string, declared int) Framework {
	return Framework{
		ID:                   id,
		Name:                 name,
		Version:              "0.0.0",
		Wired:                false,
		DeclaredRequirements: declared,
	}
}

func (r *Registry) put(f Framework) {
	if _, exists := r.byID[f.ID]; !exists {
		r.order = append(r.order, f.ID)
	}
	if f.Wired {
		f.DeclaredRequirements = len(f.Controls)
	}
	r.byID[f.ID] = f
}

// Framework returns a copy of the framework registered under id.
func (r *Registry) Framework(id string) (Framework, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.byID[id]
	if !ok {
		return Framework{}, false
	}
	return cloneFramework(f), true
}

// Controls returns the ordered control list for a framework. Unknown ids and
// placeholders yield an empty list.
func (r *Registry) Controls(id string) []ControlDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.byID[id]
	if !ok {
		return []ControlDefinition{}
	}
	return cloneControls(f.Controls)
}

// List returns every registered framework in registration order.
func (r *Registry) List() []Framework {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Framework, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, cloneFramework(r.byID[id]))
	}
	return out
}

func cloneFramework(f Framework) Framework {
	f.Controls = cloneControls(f.Controls)
	return f
}

func cloneControls(in []ControlDefinition) []ControlDefinition {
	out := make([]ControlDefinition, len(in))
	for i, c := range in {
		c.EvidenceHints = append([]string(nil), c.EvidenceHints...)
		out[i] = c
	}
	return out
}

// ContentHash returns the "sha256:<hex>" digest of the framework's
// JCS-canonical control list. It pins a catalog revision in audit packages.
func ContentHash(f Framework) (string, error) {
	raw, err := json.Marshal(struct {
		ID       string              `json:"id"`
		Version  string              `json:"version"`
		Controls []ControlDefinition `json:"controls"`
	}{f.ID, f.Version, f.Controls})
	if err != nil {
		return "", fmt.Errorf("marshal catalog %s: %w", f.ID, err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize catalog %s: %w", f.ID, err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
