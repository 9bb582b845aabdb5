package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema/catalog.schema.json
var documentSchemaJSON string

const documentSchemaURL = "https://schemas.vigilaero.io/compliance/catalog.schema.json"

// SupportedDocumentVersions is the catalog document major line this build reads.
const SupportedDocumentVersions = "^1"

// ErrStaleDocument is returned when a document does not supersede the
// registered revision of the same framework.
var ErrStaleDocument = errors.New("catalog document is not newer than the registered revision")

// Document is the on-disk YAML shape of a framework catalog.
type Document struct {
	FrameworkID string              `yaml:"framework_id" json:"framework_id"`
	Name        string              `yaml:"name" json:"name"`
	Version     string              `yaml:"version" json:"version"`
	Controls    []ControlDefinition `yaml:"controls" json:"controls"`
}

var compiledDocumentSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(documentSchemaURL, strings.NewReader(documentSchemaJSON)); err != nil {
		panic(fmt.Sprintf("catalog schema load failed: %v", err))
	}
	return c.MustCompile(documentSchemaURL)
}

// LoadDocument parses and validates a YAML catalog document into a wired
// Framework.
func LoadDocument(data []byte) (Framework, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Framework{}, fmt.Errorf("parse catalog document: %w", err)
	}

	// The schema validator works on JSON-decoded values.
	raw, err := json.Marshal(doc)
	if err != nil {
		return Framework{}, fmt.Errorf("encode catalog document: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return Framework{}, fmt.Errorf("decode catalog document: %w", err)
	}
	if err := compiledDocumentSchema.Validate(instance); err != nil {
		return Framework{}, fmt.Errorf("catalog document %q failed schema validation: %w", doc.FrameworkID, err)
	}

	if err := checkDocumentVersion(doc.Version); err != nil {
		return Framework{}, fmt.Errorf("catalog document %q: %w", doc.FrameworkID, err)
	}

	seen := make(map[string]bool, len(doc.Controls))
	for _, c := range doc.Controls {
		if seen[c.ID] {
			return Framework{}, fmt.Errorf("catalog document %q: duplicate control id %q", doc.FrameworkID, c.ID)
		}
		seen[c.ID] = true
	}

	return Framework{
		ID:       doc.FrameworkID,
		Name:     doc.Name,
		Version:  doc.Version,
		Wired:    true,
		Controls: doc.Controls,
	}, nil
}

func checkDocumentVersion(v string) error {
	version, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", v, err)
	}
	constraint, err := semver.NewConstraint(SupportedDocumentVersions)
	if err != nil {
		return fmt.Errorf("invalid version constraint: %w", err)
	}
	if !constraint.Check(version) {
		return fmt.Errorf("version %s is outside supported range %s", v, SupportedDocumentVersions)
	}
	return nil
}

// Register adds a loaded framework to the registry. A framework already
// registered under the same id is replaced only by a strictly newer version;
// placeholders are always superseded.
func (r *Registry) Register(f Framework) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.byID[f.ID]; ok && current.Wired {
		newer, err := isNewer(f.Version, current.Version)
		if err != nil {
			return fmt.Errorf("register %s: %w", f.ID, err)
		}
		if !newer {
			return fmt.Errorf("register %s %s over %s: %w", f.ID, f.Version, current.Version, ErrStaleDocument)
		}
	}
	r.put(cloneFramework(f))
	return nil
}

func isNewer(candidate, current string) (bool, error) {
	a, err := semver.NewVersion(candidate)
	if err != nil {
		return false, fmt.Errorf("invalid version %q: %w", candidate, err)
	}
	b, err := semver.NewVersion(current)
	if err != nil {
		return false, fmt.Errorf("invalid version %q: %w", current, err)
	}
	return a.GreaterThan(b), nil
}

// LoadDir reads every *.yaml / *.yml document in dir, in lexical order, and
// registers it. It stops at the first failing document.
func (r *Registry) LoadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var loaded []string
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name)) //nolint:gosec // operator-provided catalog dir
		if err != nil {
			return loaded, fmt.Errorf("read %s: %w", name, err)
		}
		f, err := LoadDocument(data)
		if err != nil {
			return loaded, fmt.Errorf("%s: %w", name, err)
		}
		if err := r.Register(f); err != nil {
			return loaded, fmt.Errorf("%s: %w", name, err)
		}
		loaded = append(loaded, f.ID)
	}
	return loaded, nil
}
