// Package validator checks and repairs tabular batches and reports what it found.
package validator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"salesetl/internal/config"
	"salesetl/internal/logger"
	"salesetl/internal/table"
)

// Validation errors.
var (
	ErrMalformedInput   = errors.New("malformed input batch")
	ErrValidationFailed = errors.New("validation failed")
)

// Rule names reported in RuleResult.
const (
	RuleCoerceNumeric    = "coerce_numeric"
	RuleCoerceDate       = "coerce_date"
	RuleMissingValues    = "missing_values"
	RuleNegativeValue    = "negative_value"
	RuleNegativeQuantity = "negative_quantity"
	RuleOrderValueRange  = "order_value_range"
	RuleFutureDate       = "future_date"
	RuleShipBeforeOrder  = "ship_before_order"
)

// RuleResult counts the rows one rule touched in one column.
type RuleResult struct {
	Rule     string
	Column   string
	Flagged  int
	Repaired int
}

// Report summarizes the validation of a single batch.
type Report struct {
	Findings     []string
	Rules        []RuleResult
	TotalRows    int
	RowsFlagged  int
	RowsRepaired int
	RowsRemoved  int
}

// Result is the outcome of validating one batch. When Err is set the
// validation could not complete and Batch is the input, unmodified.
type Result struct {
	Batch  *table.Batch
	Err    error
	Report Report
}

// OK reports whether validation ran to completion.
func (r Result) OK() bool {
	return r.Err == nil
}

// Clean reports whether validation completed without any finding.
func (r Result) Clean() bool {
	return r.Err == nil && len(r.Report.Findings) == 0
}

// String returns a one-line summary of the report.
func (r Result) String() string {
	status := "✅ CLEAN"

	switch {
	case r.Err != nil:
		status = "❌ FAILED"
	case len(r.Report.Findings) > 0:
		status = "⚠️ REPAIRED"
	}

	return fmt.Sprintf(
		"%s | Total: %d | Flagged: %d | Repaired: %d | Removed: %d | Findings: %d",
		status,
		r.Report.TotalRows,
		r.Report.RowsFlagged,
		r.Report.RowsRepaired,
		r.Report.RowsRemoved,
		len(r.Report.Findings),
	)
}

// Validator cleans batches against the configured thresholds.
type Validator struct {
	log   *logger.Logger
	th    config.Thresholds
	now   func() time.Time
	steps []func(*pass)
}

// ruleSteps run in order over the cloned batch.
var ruleSteps = []func(*pass){
	(*pass).coerce,
	(*pass).fillMissing,
	(*pass).negativeValues,
	(*pass).negativeQuantity,
	(*pass).orderValueRange,
	(*pass).futureDates,
	(*pass).shipBeforeOrder,
}

// NewValidator creates a new validator.
func NewValidator(log *logger.Logger, th config.Thresholds) *Validator {
	return &Validator{log: log, th: th, now: time.Now, steps: ruleSteps}
}

// Validate cleans a copy of b. It never panics and never fails loudly:
// problems are either repaired in the copy or recorded as findings.
func (v *Validator) Validate(name string, b *table.Batch) (res Result) {
	if b.Empty() {
		v.log.Warn("no data to validate", "batch", name)
		return Result{Batch: b, Report: Report{TotalRows: b.Len()}}
	}

	if err := b.Check(); err != nil {
		v.log.Error("validation failed", "batch", name, "error", err)
		return Result{Batch: b, Err: fmt.Errorf("%w: %w", ErrMalformedInput, err), Report: Report{TotalRows: b.Len()}}
	}

	defer func() {
		if r := recover(); r != nil {
			v.log.Error("validation failed", "batch", name, "panic", r)
			res = Result{Batch: b, Err: fmt.Errorf("%w: %v", ErrValidationFailed, r), Report: Report{TotalRows: b.Len()}}
		}
	}()

	run := &pass{
		b:        b.Clone(),
		th:       v.th,
		today:    v.now(),
		flagged:  make(map[int]bool),
		repaired: make(map[int]bool),
	}

	for _, step := range v.steps {
		step(run)
	}

	report := run.report()

	for _, f := range report.Findings {
		v.log.Warn(f, "batch", name)
	}

	v.log.Info("validation complete",
		"batch", name,
		"rows", report.TotalRows,
		"rows_flagged", report.RowsFlagged,
		"rows_repaired", report.RowsRepaired,
		"rows_removed", report.RowsRemoved,
	)

	return Result{Batch: run.b, Report: report}
}

// NamedResult pairs a batch name with its validation result.
type NamedResult struct {
	Name string
	Result
}

// Results holds validation results in collection order.
type Results []NamedResult

// Get returns the result for name.
func (rs Results) Get(name string) (Result, bool) {
	for _, r := range rs {
		if r.Name == name {
			return r.Result, true
		}
	}

	return Result{}, false
}

// Clean reports whether every member validated without findings.
func (rs Results) Clean() bool {
	for _, r := range rs {
		if !r.Clean() {
			return false
		}
	}

	return true
}

// Collection returns the validated batches under their original names.
func (rs Results) Collection() *table.Collection {
	c := table.NewCollection()
	for _, r := range rs {
		c.Put(r.Name, r.Batch)
	}

	return c
}

// ValidateCollection validates every member independently.
func (v *Validator) ValidateCollection(c *table.Collection) Results {
	names := c.Names()
	v.log.Info("validating data sources", "count", len(names))

	out := make(Results, 0, len(names))

	for _, name := range names {
		b, _ := c.Get(name)
		out = append(out, NamedResult{Name: name, Result: v.Validate(name, b)})
	}

	return out
}

// pass holds the state of one validation run over a cloned batch.
type pass struct {
	b        *table.Batch
	th       config.Thresholds
	today    time.Time
	flagged  map[int]bool
	repaired map[int]bool
	findings []string
	rules    []RuleResult
}

func (p *pass) finding(format string, args ...any) {
	p.findings = append(p.findings, fmt.Sprintf(format, args...))
}

func (p *pass) record(rule, col string, flagged, repaired []int) {
	for _, i := range flagged {
		p.flagged[i] = true
	}

	for _, i := range repaired {
		p.repaired[i] = true
	}

	p.rules = append(p.rules, RuleResult{Rule: rule, Column: col, Flagged: len(flagged), Repaired: len(repaired)})
}

func (p *pass) report() Report {
	return Report{
		TotalRows:    p.b.Len(),
		RowsFlagged:  len(p.flagged),
		RowsRepaired: len(p.repaired),
		RowsRemoved:  0,
		Findings:     p.findings,
		Rules:        p.rules,
	}
}

func containsAny(col string, parts ...string) bool {
	lc := strings.ToLower(col)

	for _, p := range parts {
		if strings.Contains(lc, p) {
			return true
		}
	}

	return false
}
