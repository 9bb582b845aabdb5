// Package report renders readiness snapshots and builds audit packages.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/scoring"
	"github.com/wolfofmycity/vigilaero-platform/pkg/readiness"
)

// Format selects a renderer.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// Renderer writes one snapshot.
type Renderer interface {
	Render(w io.Writer, snap readiness.Snapshot) error
}

// New returns the renderer for f. "md" is accepted for markdown.
func New(f Format) (Renderer, error) {
	switch Format(strings.ToLower(string(f))) {
	case FormatTable, "":
		return tableRenderer{}, nil
	case FormatJSON:
		return jsonRenderer{}, nil
	case FormatCSV:
		return csvRenderer{}, nil
	case FormatMarkdown, "md":
		return markdownRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown format %q (table, json, csv, markdown)", f)
	}
}

type jsonRenderer struct{}

func (jsonRenderer) Render(w io.Writer, snap readiness.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

type tableRenderer struct{}

func (tableRenderer) Render(w io.Writer, snap readiness.Snapshot) error {
	s := snap.Summary
	fmt.Fprintf(w, "%s (%s v%s)\n", snap.Framework.Name, snap.Framework.ID, snap.Framework.Version)
	fmt.Fprintf(w, "Score: %d%%  Status: %s  Met: %d/%d  In review: %d\n",
		s.Score, s.Status, s.Met, s.Requirements, s.InReview)
	if snap.Degraded {
		fmt.Fprintf(w, "! %s\n", snap.Notice)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tSTATUS\tEVIDENCE\tACCEPTED\tPENDING\tREJECTED\tTITLE\n")
	for _, c := range snap.Controls {
		title := c.Definition.Title
		if c.SoftGated {
			title += " [needs evidence ref]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			c.Definition.ID,
			strings.ToUpper(string(c.State.Status)),
			classLabel(c.Classification),
			c.Accepted, c.Pending, c.Rejected,
			title,
		)
	}
	return tw.Flush()
}

func classLabel(c scoring.Classification) string {
	switch c {
	case scoring.ClassMet:
		return "accepted"
	case scoring.ClassInReview:
		return "in review"
	case scoring.ClassNotApplicable:
		return "n/a"
	default:
		return "missing"
	}
}

type csvRenderer struct{}

var csvHeader = []string{
	"control_id", "title", "status", "classification",
	"accepted", "pending", "rejected", "soft_gated", "evidence_ref", "notes",
}

func (csvRenderer) Render(w io.Writer, snap readiness.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range snap.Controls {
		row := []string{
			c.Definition.ID,
			c.Definition.Title,
			string(c.State.Status),
			string(c.Classification),
			strconv.Itoa(c.Accepted),
			strconv.Itoa(c.Pending),
			strconv.Itoa(c.Rejected),
			strconv.FormatBool(c.SoftGated),
			c.State.EvidenceRef,
			c.State.Notes,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type markdownRenderer struct{}

func (markdownRenderer) Render(w io.Writer, snap readiness.Snapshot) error {
	s := snap.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Readiness\n\n", snap.Framework.Name)
	if snap.Degraded {
		fmt.Fprintf(&b, "> %s\n\n", snap.Notice)
	}
	fmt.Fprintf(&b, "- **Score:** %d%%\n", s.Score)
	fmt.Fprintf(&b, "- **Status:** %s\n", s.Status)
	fmt.Fprintf(&b, "- **Met:** %d of %d\n", s.Met, s.Requirements)
	fmt.Fprintf(&b, "- **In review:** %d\n\n", s.InReview)

	b.WriteString("| ID | Control | Status | Evidence | Accepted | Pending | Rejected |\n")
	b.WriteString("|----|---------|--------|----------|----------|---------|----------|\n")
	for _, c := range snap.Controls {
		title := escapeCell(c.Definition.Title)
		if c.SoftGated {
			title += " ⚠"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %d | %d | %d |\n",
			c.Definition.ID, title, c.State.Status, classLabel(c.Classification),
			c.Accepted, c.Pending, c.Rejected)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
