// Package extract reads raw sales records from files, databases and HTTP APIs.
package extract

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"salesetl/internal/config"
	"salesetl/internal/logger"
	"salesetl/internal/table"
)

// Extraction errors.
var (
	ErrUnsupportedSource    = errors.New("unsupported source type")
	ErrNoDatabase           = errors.New("sql source requires a database connection")
	ErrUnsupportedShape     = errors.New("document holds no array of records")
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	ErrInvalidURL           = errors.New("invalid URL")
)

// Extractor produces one batch of raw records from a source.
type Extractor interface {
	Extract(ctx context.Context) (*table.Batch, error)
}

// New returns the extractor for src. db is only used by sql sources.
func New(src config.SourceConfig, db *sql.DB, retry config.RetryPolicy, log *logger.Logger) (Extractor, error) {
	log = log.With("source", src.Name)

	switch src.Type {
	case config.SourceCSV:
		return NewCSVExtractor(src.Name, src.Path, log), nil
	case config.SourceJSON:
		return NewJSONExtractor(src.Name, src.Path, log), nil
	case config.SourceSQL:
		if db == nil {
			return nil, ErrNoDatabase
		}

		return NewSQLExtractor(src.Name, db, src.Query, log), nil
	case config.SourceAPI:
		return NewAPIExtractor(src.Name, src.URL, src.Headers, retry, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, src.Type)
	}
}

// finish tags b with its source and logs the extraction summary.
func finish(log *logger.Logger, name string, b *table.Batch) *table.Batch {
	b.Source = name
	log.Info("extraction complete", "rows_out", b.Len(), "columns", len(b.Columns()))

	return b
}
