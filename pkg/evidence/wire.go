package evidence

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/summary.schema.json
var summarySchemaJSON string

const summarySchemaURL = "https://schemas.vigilaero.io/evidence/summary.schema.json"

// ErrInvalidSummary is returned when a provider payload violates the wire schema.
var ErrInvalidSummary = errors.New("invalid evidence summary")

var compiledSummarySchema = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(summarySchemaURL, strings.NewReader(summarySchemaJSON)); err != nil {
		panic(fmt.Sprintf("evidence schema load failed: %v", err))
	}
	return c.MustCompile(summarySchemaURL)
}()

// wireSummary is the backend response envelope.
type wireSummary struct {
	OK *bool `json:"ok,omitempty"`
	Summary
}

// DecodeSummary reads a JSON evidence summary, validates it against the wire
// schema and returns it with empty maps in place of missing ones.
func DecodeSummary(r io.Reader) (Summary, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Summary{}, fmt.Errorf("read evidence summary: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrInvalidSummary, err)
	}
	if err := compiledSummarySchema.Validate(instance); err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrInvalidSummary, err)
	}

	var w wireSummary
	if err := json.Unmarshal(raw, &w); err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrInvalidSummary, err)
	}
	if w.OK != nil && !*w.OK {
		return Summary{}, fmt.Errorf("%w: provider reported ok=false", ErrInvalidSummary)
	}
	return w.Summary.Normalized(), nil
}

// EncodeSummary writes s in the wire shape.
func EncodeSummary(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s.Normalized())
}
