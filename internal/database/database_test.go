package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("postgres")
	require.NoError(t, err)
	assert.Equal(t, "$3", d.Placeholder(3))
	assert.Equal(t, `"order id"`, d.Quote("order id"))

	d, err = DialectFor("sqlite")
	require.NoError(t, err)
	assert.Equal(t, "?", d.Placeholder(3))

	_, err = DialectFor("mysql")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestOpen_SQLiteMemory(t *testing.T) {
	db, err := Open(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	var one int
	require.NoError(t, db.QueryRow("SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "dsn")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}
