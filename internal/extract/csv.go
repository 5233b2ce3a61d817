package extract

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"salesetl/internal/logger"
	"salesetl/internal/table"
)

// CSVExtractor reads a headed CSV file.
type CSVExtractor struct {
	log  *logger.Logger
	name string
	path string
}

// NewCSVExtractor creates a new CSV extractor.
func NewCSVExtractor(name, path string, log *logger.Logger) *CSVExtractor {
	return &CSVExtractor{name: name, path: path, log: log}
}

// Extract reads the file. Columns whose non-empty cells all parse as numbers
// become numeric; empty cells become null.
func (e *CSVExtractor) Extract(ctx context.Context) (*table.Batch, error) {
	e.log.Info("extracting data from CSV file", "path", e.path)

	f, err := os.Open(filepath.Clean(e.path))
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	b, err := ReadCSV(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file %s: %w", e.path, err)
	}

	return finish(e.log, e.name, b), nil
}

// ReadCSV parses CSV text whose first record is the header.
func ReadCSV(ctx context.Context, r io.Reader) (*table.Batch, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return table.New(), nil
	}

	if err != nil {
		return nil, err
	}

	reader.FieldsPerRecord = len(header)

	var raw [][]string

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, err
		}

		raw = append(raw, rec)
	}

	numeric := make([]bool, len(header))
	for j := range header {
		numeric[j] = numericColumn(raw, j)
	}

	b := table.New(header...)

	for _, rec := range raw {
		row := make(table.Row, len(header))

		for j, col := range header {
			cell := strings.TrimSpace(rec[j])

			switch {
			case cell == "":
				row[col] = table.Null()
			case numeric[j]:
				f, _ := strconv.ParseFloat(cell, 64)
				row[col] = table.Num(f)
			default:
				row[col] = table.Str(cell)
			}
		}

		b.Append(row)
	}

	return b, nil
}

func numericColumn(raw [][]string, j int) bool {
	seen := false

	for _, rec := range raw {
		cell := strings.TrimSpace(rec[j])
		if cell == "" {
			continue
		}

		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return false
		}

		seen = true
	}

	return seen
}
