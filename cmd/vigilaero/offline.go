package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/catalog"
	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/controlstate"
	"github.com/wolfofmycity/vigilaero-platform/pkg/evidence"
	"github.com/wolfofmycity/vigilaero-platform/pkg/readiness"
)

// offlineFlags are shared by the commands that score saved files.
type offlineFlags struct {
	framework  string
	statePath  string
	evidence   string
	catalogDir string
}

func (o *offlineFlags) register(cmd *flag.FlagSet) {
	cmd.StringVar(&o.framework, "framework", catalog.FAA107, "Framework id")
	cmd.StringVar(&o.statePath, "state", "", "Control state file (YAML or JSON map of control id to state)")
	cmd.StringVar(&o.evidence, "evidence", "", "Evidence summary JSON file (default: no evidence)")
	cmd.StringVar(&o.catalogDir, "catalog", os.Getenv("CATALOG_DIR"), "Directory of additional YAML catalogs")
}

func loadRegistry(dir string) (*catalog.Registry, error) {
	reg := catalog.Default()
	if dir == "" {
		return reg, nil
	}
	if _, err := reg.LoadDir(dir); err != nil {
		return nil, err
	}
	return reg, nil
}

// loadState reads a saved state map. Files ending in .json use the JSON field
// names; anything else is parsed as YAML.
func loadState(path string) (controlstate.StateMap, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-provided path
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	var m controlstate.StateMap
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &m)
	} else {
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("parse state %s: %w", path, err)
	}
	return m, nil
}

func loadEvidence(path string) (evidence.Summary, error) {
	f, err := os.Open(path) //nolint:gosec // operator-provided path
	if err != nil {
		return evidence.Summary{}, fmt.Errorf("read evidence: %w", err)
	}
	defer func() { _ = f.Close() }()
	return evidence.DecodeSummary(f)
}

// snapshot scores the saved state and evidence files for one framework.
func (o *offlineFlags) snapshot(ctx context.Context) (*catalog.Registry, readiness.Snapshot, error) {
	reg, err := loadRegistry(o.catalogDir)
	if err != nil {
		return nil, readiness.Snapshot{}, err
	}
	f, ok := reg.Framework(o.framework)
	if !ok {
		return nil, readiness.Snapshot{}, fmt.Errorf("%w: %s", readiness.ErrUnknownFramework, o.framework)
	}

	static := evidence.Static{}
	if o.evidence != "" {
		s, err := loadEvidence(o.evidence)
		if err != nil {
			return nil, readiness.Snapshot{}, err
		}
		static[f.ID] = s
	}

	arena := controlstate.NewArena()
	if o.statePath != "" && f.Wired {
		saved, err := loadState(o.statePath)
		if err != nil {
			return nil, readiness.Snapshot{}, err
		}
		if err := arena.Load(f.ID, f.Controls, saved); err != nil {
			return nil, readiness.Snapshot{}, err
		}
	}

	c := readiness.NewController(reg, static, readiness.WithArena(arena))
	if _, err := c.Activate(f.ID); err != nil {
		return nil, readiness.Snapshot{}, err
	}
	snap, err := c.Refresh(ctx, f.ID, evidence.Query{FrameworkID: f.ID, Scope: evidence.ScopeOrg})
	return reg, snap, err
}
