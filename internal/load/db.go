package load

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"salesetl/internal/database"
	"salesetl/internal/logger"
	"salesetl/internal/table"
	"salesetl/pkg/utils"
)

// DBLoader appends batches to relational tables, creating them when missing.
type DBLoader struct {
	db      *sql.DB
	log     *logger.Logger
	strings *utils.StringHelper
	dialect database.Dialect
	prefix  string
}

// NewDBLoader creates a new database loader. Table names are prefix + batch name.
func NewDBLoader(db *sql.DB, dialect database.Dialect, prefix string, log *logger.Logger) *DBLoader {
	return &DBLoader{db: db, log: log, strings: utils.NewStringHelper(), dialect: dialect, prefix: prefix}
}

// TableName returns the table a batch called name is loaded into.
func (l *DBLoader) TableName(name string) string {
	return l.prefix + l.strings.Slug(name)
}

// Load inserts every row of b in a single transaction and returns the row count.
func (l *DBLoader) Load(ctx context.Context, name string, b *table.Batch) (n int, err error) {
	cols := b.Columns()
	if len(cols) == 0 {
		return 0, nil
	}

	tbl := l.TableName(name)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, l.createStatement(tbl, b)); err != nil {
		return 0, fmt.Errorf("failed to create table %s: %w", tbl, err)
	}

	stmt, err := tx.PrepareContext(ctx, l.insertStatement(tbl, cols))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert into %s: %w", tbl, err)
	}
	defer stmt.Close()

	kinds := make([]table.Kind, len(cols))
	for j, c := range cols {
		kinds[j] = b.Kind(c)
	}

	args := make([]any, len(cols))

	for i := 0; i < b.Len(); i++ {
		for j, c := range cols {
			args[j] = dbValue(b.Get(i, c), kinds[j])
		}

		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("failed to insert row %d into %s: %w", i, tbl, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit %s: %w", tbl, err)
	}

	l.log.Info("loaded batch", "table", tbl, "rows", b.Len())

	return b.Len(), nil
}

// LoadCollection loads every member and joins the failures.
func (l *DBLoader) LoadCollection(ctx context.Context, c *table.Collection) error {
	var errs []error

	for _, name := range c.Names() {
		b, _ := c.Get(name)
		if _, err := l.Load(ctx, name, b); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (l *DBLoader) createStatement(tbl string, b *table.Batch) string {
	defs := make([]string, 0, len(b.Columns()))
	for _, c := range b.Columns() {
		defs = append(defs, l.dialect.Quote(c)+" "+l.columnType(b.Kind(c)))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", l.dialect.Quote(tbl), strings.Join(defs, ", "))
}

func (l *DBLoader) insertStatement(tbl string, cols []string) string {
	names := make([]string, len(cols))
	marks := make([]string, len(cols))

	for i, c := range cols {
		names[i] = l.dialect.Quote(c)
		marks[i] = l.dialect.Placeholder(i + 1)
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		l.dialect.Quote(tbl), strings.Join(names, ", "), strings.Join(marks, ", "))
}

func (l *DBLoader) columnType(k table.Kind) string {
	postgres := l.dialect == database.DriverPostgres

	switch k {
	case table.KindNumber:
		if postgres {
			return "DOUBLE PRECISION"
		}

		return "REAL"
	case table.KindBool:
		if postgres {
			return "BOOLEAN"
		}

		return "INTEGER"
	case table.KindTime:
		if postgres {
			return "TIMESTAMP"
		}

		return "TEXT"
	default:
		return "TEXT"
	}
}

// dbValue converts a cell for a column of kind k. Cells of mixed columns are stored as text.
func dbValue(v table.Value, k table.Kind) any {
	switch {
	case v.IsNull():
		return nil
	case k == table.KindString:
		return cell(v)
	}

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
