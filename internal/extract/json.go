package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"salesetl/internal/logger"
	"salesetl/internal/table"
)

// recordKeys are the object keys searched, in order, for the array of records.
var recordKeys = []string{"records", "data", "items", "orders", "products", "customers"}

// JSONExtractor reads a JSON document holding an array of records.
type JSONExtractor struct {
	log  *logger.Logger
	name string
	path string
}

// NewJSONExtractor creates a new JSON extractor.
func NewJSONExtractor(name, path string, log *logger.Logger) *JSONExtractor {
	return &JSONExtractor{name: name, path: path, log: log}
}

// Extract reads and flattens the document.
func (e *JSONExtractor) Extract(ctx context.Context) (*table.Batch, error) {
	e.log.Info("extracting data from JSON file", "path", e.path)

	data, err := os.ReadFile(filepath.Clean(e.path))
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON file: %w", err)
	}

	b, err := ReadJSON(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON file %s: %w", e.path, err)
	}

	return finish(e.log, e.name, b), nil
}

// ReadJSON decodes a top-level array of objects, or an object holding one
// under a well-known key. Nested objects are flattened with "." separators
// and columns keep their first-seen order.
func ReadJSON(ctx context.Context, r io.Reader) (*table.Batch, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	doc, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}

	items, err := locateRecords(doc)
	if err != nil {
		return nil, err
	}

	b := table.New()

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		obj, ok := item.(*object)
		if !ok {
			return nil, fmt.Errorf("%w: array holds %T", ErrUnsupportedShape, item)
		}

		row := make(table.Row)
		flatten(obj, "", row, b)
		b.Append(row)
	}

	return b, nil
}

// object is a JSON object that remembers its key order.
type object struct {
	vals map[string]any
	keys []string
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := &object{vals: make(map[string]any)}

		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}

			key, _ := kt.(string)

			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}

			if _, dup := obj.vals[key]; !dup {
				obj.keys = append(obj.keys, key)
			}

			obj.vals[key] = v
		}

		_, err := dec.Token()

		return obj, err
	case '[':
		arr := make([]any, 0)

		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}

			arr = append(arr, v)
		}

		_, err := dec.Token()

		return arr, err
	default:
		return nil, fmt.Errorf("unexpected delimiter %q", delim)
	}
}

func locateRecords(doc any) ([]any, error) {
	switch v := doc.(type) {
	case []any:
		return v, nil
	case *object:
		for _, key := range recordKeys {
			if arr, ok := v.vals[key].([]any); ok {
				return arr, nil
			}
		}
	}

	return nil, ErrUnsupportedShape
}

// flatten writes obj into row, registering new columns on b in key order.
func flatten(obj *object, prefix string, row table.Row, b *table.Batch) {
	for _, k := range obj.keys {
		col := k
		if prefix != "" {
			col = prefix + "." + k
		}

		switch v := obj.vals[k].(type) {
		case *object:
			flatten(v, col, row, b)
		case []any:
			b.AddColumn(col)

			text, err := json.Marshal(plain(v))
			if err != nil {
				row[col] = table.Null()
				continue
			}

			row[col] = table.Str(string(text))
		default:
			b.AddColumn(col)
			row[col] = table.Of(v)
		}
	}
}

// plain converts decoded values back to types encoding/json can marshal.
func plain(v any) any {
	switch x := v.(type) {
	case *object:
		m := make(map[string]any, len(x.keys))
		for _, k := range x.keys {
			m[k] = plain(x.vals[k])
		}

		return m
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}

		return out
	default:
		return v
	}
}
