package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/wolfofmycity/vigilaero-platform/pkg/artifacts"
	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/gate"
	"github.com/wolfofmycity/vigilaero-platform/pkg/report"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runFrameworksCmd implements `vigilaero frameworks`.
func runFrameworksCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("frameworks", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		catalogDir string
		jsonOutput bool
	)
	cmd.StringVar(&catalogDir, "catalog", os.Getenv("CATALOG_DIR"), "Directory of additional YAML catalogs")
	cmd.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	reg, err := loadRegistry(catalogDir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	frameworks := reg.List()
	for i := range frameworks {
		frameworks[i].Controls = nil
	}
	if jsonOutput {
		if err := writeJSON(stdout, frameworks); err != nil {
			return 2
		}
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVERSION\tWIRED\tREQUIREMENTS")
	for _, f := range frameworks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\n", f.ID, f.Name, f.Version, f.Wired, f.DeclaredRequirements)
	}
	if err := tw.Flush(); err != nil {
		return 2
	}
	return 0
}

// runControlsCmd implements `vigilaero controls`.
func runControlsCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("controls", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		frameworkID string
		catalogDir  string
		jsonOutput  bool
	)
	cmd.StringVar(&frameworkID, "framework", "", "Framework id (REQUIRED)")
	cmd.StringVar(&catalogDir, "catalog", os.Getenv("CATALOG_DIR"), "Directory of additional YAML catalogs")
	cmd.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if frameworkID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --framework is required")
		return 2
	}

	reg, err := loadRegistry(catalogDir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	f, ok := reg.Framework(frameworkID)
	if !ok {
		_, _ = fmt.Fprintf(stderr, "Error: unknown framework %q\n", frameworkID)
		return 2
	}
	if jsonOutput {
		if err := writeJSON(stdout, f); err != nil {
			return 2
		}
		return 0
	}

	_, _ = fmt.Fprintf(stdout, "%s (%s v%s)\n", f.Name, f.ID, f.Version)
	if !f.Wired {
		_, _ = fmt.Fprintf(stdout, "Not yet wired: %d requirements declared.\n", f.DeclaredRequirements)
		return 0
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tINTENT")
	for _, c := range f.Controls {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Title, c.Intent)
	}
	if err := tw.Flush(); err != nil {
		return 2
	}
	return 0
}

// runScoreCmd implements `vigilaero score`.
func runScoreCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("score", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		o      offlineFlags
		format string
	)
	o.register(cmd)
	cmd.StringVar(&format, "format", "table", "Output format: table, json, csv, markdown")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	r, err := report.New(report.Format(format))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	_, snap, err := o.snapshot(context.Background())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if err := r.Render(stdout, snap); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

// runCheckCmd implements `vigilaero check`.
//
// Exit codes:
//
//	0 = gate passed
//	1 = gate failed
//	2 = usage or runtime error
func runCheckCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("check", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		o          offlineFlags
		expr       string
		jsonOutput bool
	)
	o.register(cmd)
	cmd.StringVar(&expr, "expr", `status == "audit_ready"`, "CEL gate expression")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ev, err := gate.NewEvaluator()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	g, err := ev.Compile(expr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	_, snap, err := o.snapshot(context.Background())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	pass, err := g.Evaluate(snap.Summary, snap.Framework.ID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		_ = writeJSON(stdout, map[string]any{
			"framework": snap.Framework.ID,
			"expr":      g.Expr(),
			"pass":      pass,
			"summary":   snap.Summary,
		})
	} else {
		verdict := "PASS"
		if !pass {
			verdict = "FAIL"
		}
		_, _ = fmt.Fprintf(stdout, "%s  %s  score=%d status=%s  (%s)\n",
			verdict, snap.Framework.ID, snap.Summary.Score, snap.Summary.Status, g.Expr())
	}
	if !pass {
		return 1
	}
	return 0
}

// runExportCmd implements `vigilaero export`. The package is written to
// --out (default: the dated report filename in the working directory) and,
// with --publish, also stored through the configured artifact store.
func runExportCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("export", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		o       offlineFlags
		outPath string
		publish bool
	)
	o.register(cmd)
	cmd.StringVar(&outPath, "out", "", "Output file (default: VigilAero-Compliance-Report-<date>.json)")
	cmd.BoolVar(&publish, "publish", false, "Also publish to the artifact store (ARTIFACT_STORAGE_TYPE)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	reg, snap, err := o.snapshot(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	now := time.Now()
	pkg, err := report.NewBuilder(reg).WithClock(func() time.Time { return now }).Build(snap)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	data, err := report.Marshal(pkg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if outPath == "" {
		outPath = report.Filename(now)
	}
	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: cannot create output directory: %v\n", err)
			return 2
		}
	}
	if err := os.WriteFile(outPath, data, 0600); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintf(stdout, "Wrote %s (%s)\n", outPath, pkg.ContentHash)

	if publish {
		store, err := artifacts.NewStoreFromEnv(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		ref, err := report.Publish(ctx, store, pkg)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: publish: %v\n", err)
			return 2
		}
		_, _ = fmt.Fprintf(stdout, "Published %s\n", ref)
	}
	return 0
}
