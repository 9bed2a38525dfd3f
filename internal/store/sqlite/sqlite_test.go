package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nholding/tsingest/internal/schema"
	"github.com/nholding/tsingest/internal/store"
	"github.com/nholding/tsingest/internal/store/sqlite"
)

func newStore(t *testing.T) store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	registry := store.NewRegistry()
	st, err := sqlite.Open(context.Background(), registry, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func quoteSchema() schema.Schema {
	return schema.Schema{
		Columns: []schema.Column{
			{Name: "ticker", Type: schema.Text},
			{Name: "price", Type: schema.Real},
		},
		UniqueConstraint: []string{"ticker"},
	}
}

func TestCreateTable_MissingFailsWithoutCreateMissing(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	err := st.CreateTable(ctx, "quotes", quoteSchema(), nil, false)
	require.Error(t, err)
	var missing *store.TableMissingError
	assert.ErrorAs(t, err, &missing)
}

func TestAppendQueryDelete(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateTable(ctx, "quotes", quoteSchema(), nil, true))

	batch := schema.Batch{
		{"ticker": "ACME", "price": 1.5},
		{"ticker": "GLOB", "price": 2.5},
	}
	require.NoError(t, st.Append(ctx, "quotes", batch))

	rows, err := st.Query(ctx, "quotes", store.EqP("ticker", "ACME"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1.5, rows[0]["price"])

	all, err := st.Query(ctx, "quotes", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	n, err := st.Delete(ctx, "quotes", store.EqP("ticker", "ACME"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	remaining, err := st.Query(ctx, "quotes", nil)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestAppend_UniqueViolation(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateTable(ctx, "quotes", quoteSchema(), []string{"ticker"}, true))

	require.NoError(t, st.Append(ctx, "quotes", schema.Batch{{"ticker": "ACME", "price": 1.0}}))

	err := st.Append(ctx, "quotes", schema.Batch{{"ticker": "ACME", "price": 2.0}})
	require.Error(t, err)
	var uniq *store.UniqueViolationError
	assert.ErrorAs(t, err, &uniq)
}

func TestReplace_SwapsWholeTable(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateTable(ctx, "quotes", quoteSchema(), []string{"ticker"}, true))

	require.NoError(t, st.Append(ctx, "quotes", schema.Batch{{"ticker": "ACME", "price": 1.0}}))
	require.NoError(t, st.Replace(ctx, "quotes", schema.Batch{{"ticker": "GLOB", "price": 9.0}}))

	rows, err := st.Query(ctx, "quotes", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "GLOB", rows[0]["ticker"])
}

func TestDropTable_IdempotentOnAbsent(t *testing.T) {
	st := newStore(t)
	assert.NoError(t, st.DropTable(context.Background(), "never_existed"))
}

func TestJoin(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	left := schema.Schema{Columns: []schema.Column{{Name: "ticker", Type: schema.Text}, {Name: "sector", Type: schema.Text}}}
	right := schema.Schema{Columns: []schema.Column{{Name: "ticker", Type: schema.Text}, {Name: "price", Type: schema.Real}}}

	require.NoError(t, st.CreateTable(ctx, "issuers", left, nil, true))
	require.NoError(t, st.CreateTable(ctx, "prices", right, nil, true))
	require.NoError(t, st.Append(ctx, "issuers", schema.Batch{{"ticker": "ACME", "sector": "industrials"}}))
	require.NoError(t, st.Append(ctx, "prices", schema.Batch{{"ticker": "ACME", "price": 42.0}}))

	rows, err := st.Join(ctx, []string{"issuers", "prices"}, "ticker", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "industrials", rows[0]["sector"])
}
