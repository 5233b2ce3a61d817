package formatter

import (
	"fmt"
	"strings"
	"time"

	"salesetl/internal/table"
	"salesetl/internal/validator"
	"salesetl/pkg/metadata"
	"salesetl/pkg/utils"
)

// reportVersion is written into the metadata block of every report.
const reportVersion = "1"

// maxTableRows limits how many rows of a multi-row metric are rendered.
const maxTableRows = 30

// maxCellRunes limits the length of a rendered cell.
const maxCellRunes = 60

// Report collects what one pipeline run produced for a source.
type Report struct {
	GeneratedAt time.Time
	Metrics     *table.Collection
	Consistency *validator.Consistency
	RunID       string
	Source      string
	Validation  validator.Results
	Outputs     []string
}

// Validated reports whether every batch validated cleanly and the batches are consistent.
func (r *Report) Validated() bool {
	if len(r.Validation) == 0 || !r.Validation.Clean() {
		return false
	}

	return r.Consistency == nil || r.Consistency.Consistent
}

// Render writes the report as aligned markdown with a signed metadata block.
func Render(r *Report) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Sales ETL Report: %s\n\n", r.Source)
	fmt.Fprintf(&sb, "- Run: `%s`\n", r.RunID)
	fmt.Fprintf(&sb, "- Generated: %s\n", r.GeneratedAt.UTC().Format(time.RFC3339))

	writeValidation(&sb, r.Validation)
	writeConsistency(&sb, r.Consistency)
	writeMetrics(&sb, r.Metrics)

	if len(r.Outputs) > 0 {
		sb.WriteString("\n## Outputs\n\n")

		for _, o := range r.Outputs {
			fmt.Fprintf(&sb, "- `%s`\n", o)
		}
	}

	return metadata.Sign(AlignTables(strings.TrimRight(sb.String(), "\n")), metadata.Metadata{
		Validation: r.Validated(),
		RunID:      r.RunID,
		Version:    reportVersion,
		LastModify: r.GeneratedAt,
	})
}

func writeValidation(sb *strings.Builder, results validator.Results) {
	sb.WriteString("\n## Validation\n\n")

	if len(results) == 0 {
		sb.WriteString("No batches were validated.\n")
		return
	}

	sb.WriteString("| Batch | Status | Rows | Flagged | Repaired | Removed |\n")
	sb.WriteString("| --- | --- | ---: | ---: | ---: | ---: |\n")

	for _, r := range results {
		fmt.Fprintf(sb, "| %s | %s | %d | %d | %d | %d |\n",
			escape(r.Name), status(r.Result),
			r.Report.TotalRows, r.Report.RowsFlagged, r.Report.RowsRepaired, r.Report.RowsRemoved)
	}

	var findings []string

	for _, r := range results {
		if r.Err != nil {
			findings = append(findings, fmt.Sprintf("- **%s**: %v", r.Name, r.Err))
		}

		for _, f := range r.Report.Findings {
			findings = append(findings, fmt.Sprintf("- **%s**: %s", r.Name, f))
		}
	}

	if len(findings) > 0 {
		sb.WriteString("\n### Findings\n\n")
		sb.WriteString(strings.Join(findings, "\n"))
		sb.WriteString("\n")
	}
}

func status(r validator.Result) string {
	switch {
	case r.Err != nil:
		return "❌ FAILED"
	case len(r.Report.Findings) > 0:
		return "⚠️ REPAIRED"
	default:
		return "✅ CLEAN"
	}
}

func writeConsistency(sb *strings.Builder, c *validator.Consistency) {
	if c == nil {
		return
	}

	sb.WriteString("\n## Consistency\n\n")

	if c.Consistent {
		sb.WriteString("✅ Sales, products and customers are consistent.\n")
		return
	}

	for _, e := range c.Errors {
		fmt.Fprintf(sb, "- ❌ %s\n", e)
	}

	for _, w := range c.Warnings {
		fmt.Fprintf(sb, "- ⚠️ %s\n", w)
	}
}

func writeMetrics(sb *strings.Builder, metrics *table.Collection) {
	if metrics.Len() == 0 {
		return
	}

	sb.WriteString("\n## Metrics\n")

	for _, name := range metrics.Names() {
		b, _ := metrics.Get(name)
		if b.Empty() {
			continue
		}

		fmt.Fprintf(sb, "\n### %s\n\n", name)

		if b.Len() == 1 {
			writeSummary(sb, b)
		} else {
			writeTable(sb, b)
		}
	}
}

// writeSummary renders a single-row batch as metric/value pairs.
func writeSummary(sb *strings.Builder, b *table.Batch) {
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("| --- | ---: |\n")

	for _, c := range b.Columns() {
		fmt.Fprintf(sb, "| %s | %s |\n", escape(c), render(b.Get(0, c)))
	}
}

func writeTable(sb *strings.Builder, b *table.Batch) {
	cols := b.Columns()

	sb.WriteString("|")

	for _, c := range cols {
		fmt.Fprintf(sb, " %s |", escape(c))
	}

	sb.WriteString("\n|")
	sb.WriteString(strings.Repeat(" --- |", len(cols)))
	sb.WriteString("\n")

	rows := min(b.Len(), maxTableRows)

	for i := 0; i < rows; i++ {
		sb.WriteString("|")

		for _, c := range cols {
			fmt.Fprintf(sb, " %s |", render(b.Get(i, c)))
		}

		sb.WriteString("\n")
	}

	if b.Len() > rows {
		fmt.Fprintf(sb, "\n_%d more rows not shown._\n", b.Len()-rows)
	}
}

var helper = utils.NewStringHelper()

func render(v table.Value) string {
	if v.IsNull() {
		return "-"
	}

	return escape(helper.Truncate(v.String(), maxCellRunes))
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
