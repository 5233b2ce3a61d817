// Package formatter renders pipeline results as aligned, signed markdown.
package formatter

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"salesetl/pkg/metadata"
)

// FormatReport re-aligns the tables of a report and signs it again, keeping
// the run id of its existing block. The validation flag is kept only when the
// existing hash still matches.
func FormatReport(content string) string {
	meta, body := metadata.Extract(content)

	next := metadata.Metadata{}
	if meta != nil {
		intact, _ := metadata.Verify(content)
		next = metadata.Metadata{Validation: meta.Validation && intact, RunID: meta.RunID, Version: meta.Version}
	}

	return metadata.Sign(AlignTables(body), next)
}

// AlignTables pads every markdown table in content so its columns line up by
// display width. Everything outside tables is left as is.
func AlignTables(content string) string {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))

	var buf []string

	flush := func() {
		if len(buf) > 0 {
			out = append(out, alignTable(buf)...)
			buf = nil
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) > 1 && strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|") {
			buf = append(buf, line)
			continue
		}

		flush()
		out = append(out, line)
	}

	flush()

	return strings.Join(out, "\n")
}

type alignment int

const (
	alignLeft alignment = iota
	alignRight
	alignCenter
)

func alignTable(rows []string) []string {
	if len(rows) < 2 {
		return rows
	}

	cells := make([][]string, len(rows))
	cols := 0

	for i, row := range rows {
		cells[i] = splitRow(row)
		cols = max(cols, len(cells[i]))
	}

	sep := -1
	if isSeparator(cells[1]) {
		sep = 1
	}

	aligns := make([]alignment, cols)
	if sep >= 0 {
		for j, c := range cells[sep] {
			aligns[j] = parseAlignment(c)
		}
	}

	widths := make([]int, cols)
	for i := range widths {
		widths[i] = 3
	}

	for i, row := range cells {
		if i == sep {
			continue
		}

		for j, c := range row {
			widths[j] = max(widths[j], runewidth.StringWidth(c))
		}
	}

	out := make([]string, len(cells))

	for i, row := range cells {
		var sb strings.Builder

		sb.WriteString("|")

		for j := 0; j < cols; j++ {
			c := ""
			if j < len(row) {
				c = row[j]
			}

			sb.WriteString(" ")

			if i == sep {
				sb.WriteString(separatorCell(widths[j], aligns[j]))
			} else {
				sb.WriteString(pad(c, widths[j], aligns[j]))
			}

			sb.WriteString(" |")
		}

		out[i] = sb.String()
	}

	return out
}

// splitRow splits a table row on unescaped pipes and trims each cell.
func splitRow(row string) []string {
	row = strings.TrimSpace(row)
	row = strings.TrimPrefix(row, "|")

	if strings.HasSuffix(row, "|") && !strings.HasSuffix(row, `\|`) {
		row = row[:len(row)-1]
	}

	var (
		cells []string
		cur   strings.Builder
	)

	for i := 0; i < len(row); i++ {
		switch {
		case row[i] == '\\' && i+1 < len(row) && row[i+1] == '|':
			cur.WriteString(`\|`)
			i++
		case row[i] == '|':
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(row[i])
		}
	}

	return append(cells, strings.TrimSpace(cur.String()))
}

func isSeparator(row []string) bool {
	for _, c := range row {
		if strings.Trim(c, "-: ") != "" || !strings.Contains(c, "-") {
			return false
		}
	}

	return len(row) > 0
}

func parseAlignment(c string) alignment {
	left, right := strings.HasPrefix(c, ":"), strings.HasSuffix(c, ":")

	switch {
	case left && right:
		return alignCenter
	case right:
		return alignRight
	default:
		return alignLeft
	}
}

func separatorCell(width int, a alignment) string {
	switch a {
	case alignRight:
		return strings.Repeat("-", width-1) + ":"
	case alignCenter:
		return ":" + strings.Repeat("-", width-2) + ":"
	default:
		return strings.Repeat("-", width)
	}
}

func pad(c string, width int, a alignment) string {
	gap := width - runewidth.StringWidth(c)
	if gap <= 0 {
		return c
	}

	switch a {
	case alignRight:
		return strings.Repeat(" ", gap) + c
	case alignCenter:
		return strings.Repeat(" ", gap/2) + c + strings.Repeat(" ", gap-gap/2)
	default:
		return c + strings.Repeat(" ", gap)
	}
}
