package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesetl/internal/config"
	"salesetl/internal/logger"
	"salesetl/internal/table"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func testRetry() config.RetryPolicy {
	return config.RetryPolicy{MaxAttempts: 3, BackoffMultiplier: 2, TimeoutSec: 5}
}

func TestReadCSV(t *testing.T) {
	in := "order_id,quantity,unit_price,status\nO1,2,10.5,Delivered\nO2,,3,\nO3,1,n/a,Shipped\n"

	b, err := ReadCSV(context.Background(), strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"order_id", "quantity", "unit_price", "status"}, b.Columns())
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, table.KindNumber, b.Kind("quantity"))
	assert.Equal(t, table.KindString, b.Kind("unit_price"))
	assert.True(t, b.Get(1, "quantity").IsNull())
	assert.True(t, b.Get(1, "status").IsNull())
	assert.Equal(t, table.Str("O1"), b.Get(0, "order_id"))
	assert.Equal(t, table.Num(2), b.Get(0, "quantity"))
}

func TestReadCSV_EmptyInput(t *testing.T) {
	b, err := ReadCSV(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.True(t, b.Empty())
}

func TestReadCSV_RaggedRow(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader("a,b\n1\n"))
	assert.Error(t, err)
}

func TestCSVExtractor(t *testing.T) {
	path := writeFile(t, "sales.csv", "order_id,total_price\nO1,10\n")

	b, err := NewCSVExtractor("store", path, logger.Discard()).Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "store", b.Source)
	assert.Equal(t, 1, b.Len())

	_, err = NewCSVExtractor("store", filepath.Join(t.TempDir(), "missing.csv"), logger.Discard()).Extract(context.Background())
	assert.Error(t, err)
}

func TestReadJSON_Shapes(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		rows int
	}{
		{"top-level array", `[{"id":1},{"id":2}]`, 2},
		{"records key", `{"meta":{"n":1},"records":[{"id":1}]}`, 1},
		{"orders key", `{"orders":[{"id":1},{"id":2},{"id":3}]}`, 3},
		{"empty array", `[]`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ReadJSON(context.Background(), strings.NewReader(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.rows, b.Len())
		})
	}
}

func TestReadJSON_Unsupported(t *testing.T) {
	for _, doc := range []string{`{"foo":[{"id":1}]}`, `[1,2]`, `"text"`} {
		_, err := ReadJSON(context.Background(), strings.NewReader(doc))
		assert.ErrorIs(t, err, ErrUnsupportedShape, doc)
	}
}

func TestReadJSON_FlattensInOrder(t *testing.T) {
	doc := `[
		{"sku":"A-1","price":12.5,"dims":{"w":2,"h":3},"tags":["x","y"],"active":true},
		{"sku":"B-2","extra":null}
	]`

	b, err := ReadJSON(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, []string{"sku", "price", "dims.w", "dims.h", "tags", "active", "extra"}, b.Columns())
	assert.Equal(t, table.Num(12.5), b.Get(0, "price"))
	assert.Equal(t, table.Num(3), b.Get(0, "dims.h"))
	assert.Equal(t, table.Str(`["x","y"]`), b.Get(0, "tags"))
	assert.Equal(t, table.Bool(true), b.Get(0, "active"))
	assert.True(t, b.Get(1, "price").IsNull())
	assert.True(t, b.Get(1, "extra").IsNull())
}

func TestJSONExtractor(t *testing.T) {
	path := writeFile(t, "products.json", `{"products":[{"product_id":"P1"}]}`)

	b, err := NewJSONExtractor("catalog", path, logger.Discard()).Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "catalog", b.Source)
	assert.Equal(t, table.Str("P1"), b.Get(0, "product_id"))
}

func TestSQLExtractor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"order_id", "quantity", "status"}).
		AddRow("O1", int64(2), []byte("Delivered")).
		AddRow("O2", nil, "Pending")

	mock.ExpectQuery("SELECT order_id, quantity, status FROM sales").WillReturnRows(rows)

	b, err := NewSQLExtractor("warehouse", db, "SELECT order_id, quantity, status FROM sales", logger.Discard()).
		Extract(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, table.Num(2), b.Get(0, "quantity"))
	assert.Equal(t, table.Str("Delivered"), b.Get(0, "status"))
	assert.True(t, b.Get(1, "quantity").IsNull())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLExtractor_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnError(sqlmock.ErrCancelled)

	_, err = NewSQLExtractor("warehouse", db, "SELECT 1", logger.Discard()).Extract(context.Background())
	assert.ErrorIs(t, err, sqlmock.ErrCancelled)
}

func TestAPIExtractor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "token", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(`{"data":[{"order_id":"O1","total_price":10}]}`))
	}))
	defer srv.Close()

	e, err := NewAPIExtractor("shop", srv.URL, map[string]string{"X-Api-Key": "token"}, testRetry(), logger.Discard())
	require.NoError(t, err)

	b, err := e.Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "shop", b.Source)
	assert.Equal(t, table.Num(10), b.Get(0, "total_price"))
}

func TestAPIExtractor_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		_, _ = w.Write([]byte(`[{"order_id":"O1"}]`))
	}))
	defer srv.Close()

	e, err := NewAPIExtractor("shop", srv.URL, nil, testRetry(), logger.Discard())
	require.NoError(t, err)

	b, err := e.Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, int32(3), calls.Load())
}

func TestAPIExtractor_DoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	e, err := NewAPIExtractor("shop", srv.URL, nil, testRetry(), logger.Discard())
	require.NoError(t, err)

	_, err = e.Extract(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedStatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewAPIExtractor_InvalidURL(t *testing.T) {
	_, err := NewAPIExtractor("shop", "ftp://example.com", nil, testRetry(), logger.Discard())
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestNew(t *testing.T) {
	log := logger.Discard()

	e, err := New(config.SourceConfig{Name: "a", Type: config.SourceCSV, Path: "a.csv"}, nil, testRetry(), log)
	require.NoError(t, err)
	assert.IsType(t, &CSVExtractor{}, e)

	e, err = New(config.SourceConfig{Name: "b", Type: config.SourceJSON, Path: "b.json"}, nil, testRetry(), log)
	require.NoError(t, err)
	assert.IsType(t, &JSONExtractor{}, e)

	_, err = New(config.SourceConfig{Name: "c", Type: config.SourceSQL, Query: "SELECT 1"}, nil, testRetry(), log)
	assert.ErrorIs(t, err, ErrNoDatabase)

	_, err = New(config.SourceConfig{Name: "d", Type: "xml"}, nil, testRetry(), log)
	assert.ErrorIs(t, err, ErrUnsupportedSource)
}
