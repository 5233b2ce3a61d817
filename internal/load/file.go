// Package load writes processed batches to files and relational tables.
package load

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"salesetl/internal/logger"
	"salesetl/internal/table"
	"salesetl/pkg/utils"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// timeLayout renders timestamps in exports and database rows.
const timeLayout = "2006-01-02 15:04:05"

// ErrUnsupportedFormat is returned for export formats other than csv and json.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// FileExporter writes each batch to <prefix>_<name>_<stamp>.<ext> under a directory.
type FileExporter struct {
	log     *logger.Logger
	now     func() time.Time
	strings *utils.StringHelper
	dir     string
	prefix  string
	formats []string
	pretty  bool
}

// NewFileExporter creates a new file exporter.
func NewFileExporter(dir, prefix string, formats []string, pretty bool, log *logger.Logger) *FileExporter {
	if len(formats) == 0 {
		formats = []string{FormatCSV}
	}

	return &FileExporter{
		log:     log,
		now:     time.Now,
		strings: utils.NewStringHelper(),
		dir:     dir,
		prefix:  prefix,
		formats: formats,
		pretty:  pretty,
	}
}

// SetClock replaces the clock used for file name stamps.
func (e *FileExporter) SetClock(now func() time.Time) {
	e.now = now
}

// Export writes b in every configured format and returns the written paths.
func (e *FileExporter) Export(name string, b *table.Batch) ([]string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	stamp := e.now().Format("20060102_150405")
	base := e.strings.Slug(name)

	if e.prefix != "" {
		base = e.prefix + "_" + base
	}

	var paths []string

	for _, format := range e.formats {
		var (
			data []byte
			err  error
		)

		switch strings.ToLower(format) {
		case FormatCSV:
			data, err = EncodeCSV(b)
		case FormatJSON:
			data, err = EncodeJSON(b, e.pretty)
		default:
			err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
		}

		if err != nil {
			return paths, err
		}

		path := filepath.Join(e.dir, fmt.Sprintf("%s_%s.%s", base, stamp, strings.ToLower(format)))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", path, err)
		}

		e.log.Info("exported batch", "batch", name, "rows", b.Len(), "path", path)
		paths = append(paths, path)
	}

	return paths, nil
}

// ExportCollection exports every member and joins the failures.
func (e *FileExporter) ExportCollection(c *table.Collection) ([]string, error) {
	var (
		paths []string
		errs  []error
	)

	for _, name := range c.Names() {
		b, _ := c.Get(name)

		written, err := e.Export(name, b)
		paths = append(paths, written...)

		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	return paths, errors.Join(errs...)
}

// EncodeCSV renders b with a header row. Null cells are empty.
func EncodeCSV(b *table.Batch) ([]byte, error) {
	var buf bytes.Buffer

	w := csv.NewWriter(&buf)
	cols := b.Columns()

	if err := w.Write(cols); err != nil {
		return nil, err
	}

	record := make([]string, len(cols))

	for i := 0; i < b.Len(); i++ {
		for j, c := range cols {
			record[j] = cell(b.Get(i, c))
		}

		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()

	return buf.Bytes(), w.Error()
}

// EncodeJSON renders b as an array of objects keeping column order.
func EncodeJSON(b *table.Batch, pretty bool) ([]byte, error) {
	var buf bytes.Buffer

	cols := b.Columns()

	buf.WriteByte('[')

	for i := 0; i < b.Len(); i++ {
		if i > 0 {
			buf.WriteByte(',')
		}

		buf.WriteByte('{')

		for j, c := range cols {
			if j > 0 {
				buf.WriteByte(',')
			}

			key, err := json.Marshal(c)
			if err != nil {
				return nil, err
			}

			val, err := json.Marshal(jsonValue(b.Get(i, c)))
			if err != nil {
				return nil, err
			}

			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}

		buf.WriteByte('}')
	}

	buf.WriteByte(']')

	if !pretty {
		return buf.Bytes(), nil
	}

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, err
	}

	return out.Bytes(), nil
}

func cell(v table.Value) string {
	if t, ok := v.When(); ok {
		return t.Format(timeLayout)
	}

	return v.String()
}

func jsonValue(v table.Value) any {
	switch v.Kind() {
	case table.KindNumber:
		f, _ := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}

		return f
	case table.KindTime:
		return cell(v)
	default:
		return v.Interface()
	}
}
