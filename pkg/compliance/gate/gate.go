// Package gate evaluates readiness gate expressions over a computed framework
// summary. Expressions are CEL, for example:
//
//	score >= 75 && status != "needs_work"
//
// Variables: score, met, requirements, evidence_coverage, in_review (int),
// status, framework (string).
package gate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/wolfofmycity/vigilaero-platform/pkg/compliance/scoring"
)

// ErrNotBool is returned when an expression does not produce a bool.
var ErrNotBool = errors.New("gate: result not bool")

// Evaluator compiles gate expressions against a fixed environment and caches
// the resulting programs by source text.
type Evaluator struct {
	env      *cel.Env
	mu       sync.RWMutex
	prgCache map[string]cel.Program
}

// NewEvaluator creates an evaluator with the summary variables declared.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("score", cel.IntType),
		cel.Variable("met", cel.IntType),
		cel.Variable("requirements", cel.IntType),
		cel.Variable("evidence_coverage", cel.IntType),
		cel.Variable("in_review", cel.IntType),
		cel.Variable("status", cel.StringType),
		cel.Variable("framework", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Evaluator{env: env, prgCache: make(map[string]cel.Program)}, nil
}

// Gate is one compiled expression.
type Gate struct {
	expr string
	prg  cel.Program
}

// Expr returns the source text.
func (g *Gate) Expr() string { return g.expr }

// Compile type-checks expr and returns a reusable gate.
func (e *Evaluator) Compile(expr string) (*Gate, error) {
	prg, err := e.program(expr)
	if err != nil {
		return nil, err
	}
	return &Gate{expr: expr, prg: prg}, nil
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.prgCache[expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.prgCache[expr]; hit {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: expression has type %s", ErrNotBool, out)
	}
	p, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	e.prgCache[expr] = p
	return p, nil
}

// Evaluate runs the gate against s.
func (g *Gate) Evaluate(s scoring.FrameworkSummary, frameworkID string) (bool, error) {
	out, _, err := g.prg.Eval(Activation(s, frameworkID))
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, ErrNotBool
	}
	return val, nil
}

// Activation converts a summary into CEL input.
func Activation(s scoring.FrameworkSummary, frameworkID string) map[string]any {
	return map[string]any{
		"score":             int64(s.Score),
		"met":               int64(s.Met),
		"requirements":      int64(s.Requirements),
		"evidence_coverage": int64(s.EvidenceCoverage),
		"in_review":         int64(s.InReview),
		"status":            string(s.Status),
		"framework":         frameworkID,
	}
}

// Check compiles and evaluates expr in one call.
func (e *Evaluator) Check(expr string, s scoring.FrameworkSummary, frameworkID string) (bool, error) {
	g, err := e.Compile(expr)
	if err != nil {
		return false, err
	}
	return g.Evaluate(s, frameworkID)
}
