package extract

import (
	"context"
	"database/sql"
	"fmt"

	"salesetl/internal/logger"
	"salesetl/internal/table"
)

// SQLExtractor runs a query and returns its rows.
type SQLExtractor struct {
	db    *sql.DB
	log   *logger.Logger
	name  string
	query string
}

// NewSQLExtractor creates a new SQL extractor.
func NewSQLExtractor(name string, db *sql.DB, query string, log *logger.Logger) *SQLExtractor {
	return &SQLExtractor{name: name, db: db, query: query, log: log}
}

// Extract executes the query.
func (e *SQLExtractor) Extract(ctx context.Context) (*table.Batch, error) {
	e.log.Info("executing query", "query", e.query)

	rows, err := e.db.QueryContext(ctx, e.query)
	if err != nil {
		return nil, fmt.Errorf("failed to query database: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	b := table.New(cols...)

	for rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))

		for i := range cells {
			ptrs[i] = &cells[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(table.Row, len(cols))
		for i, c := range cols {
			row[c] = table.Of(cells[i])
		}

		b.Append(row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return finish(e.log, e.name, b), nil
}
