package schema_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nholding/tsingest/internal/schema"
)

func priceSchema() schema.Schema {
	return schema.Schema{Columns: []schema.Column{
		{Name: "ticker", Type: schema.Text},
		{Name: "ts", Type: schema.Timestamp},
		{Name: "price", Type: schema.Real},
	}}
}

func TestValidate_EmptyBatchPassesTrivially(t *testing.T) {
	require.NoError(t, priceSchema().Validate(nil))
}

func TestValidate_HappyPath(t *testing.T) {
	batch := schema.Batch{
		{"ticker": "ACME", "ts": time.Now(), "price": 1.23},
	}
	assert.NoError(t, priceSchema().Validate(batch))
}

func TestValidate_MissingColumn(t *testing.T) {
	batch := schema.Batch{{"ticker": "ACME", "ts": time.Now()}}
	err := priceSchema().Validate(batch)
	require.Error(t, err)
	var mismatch *schema.MismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestValidate_WrongType(t *testing.T) {
	batch := schema.Batch{{"ticker": "ACME", "ts": time.Now(), "price": "not a number"}}
	err := priceSchema().Validate(batch)
	require.Error(t, err)
	var mismatch *schema.MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "price", mismatch.Column)
}

func TestValidate_UnexpectedColumn(t *testing.T) {
	batch := schema.Batch{{"ticker": "ACME", "ts": time.Now(), "price": 1.0, "extra": true}}
	err := priceSchema().Validate(batch)
	require.Error(t, err)
}

func TestValidate_UniqueConstraintViolation(t *testing.T) {
	sch := priceSchema()
	sch.UniqueConstraint = []string{"ticker", "ts"}

	now := time.Now()
	batch := schema.Batch{
		{"ticker": "ACME", "ts": now, "price": 1.0},
		{"ticker": "ACME", "ts": now, "price": 2.0},
	}

	err := sch.Validate(batch)
	require.Error(t, err)
	var mismatch *schema.MismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestConcat_Disjoint(t *testing.T) {
	param := schema.Schema{Columns: []schema.Column{{Name: "ticker", Type: schema.Text}}}
	data := schema.Schema{Columns: []schema.Column{{Name: "price", Type: schema.Real}}}

	combined, err := schema.Concat(param, data)
	require.NoError(t, err)
	assert.Equal(t, []string{"ticker", "price"}, combined.ColumnNames())
}

func TestConcat_DuplicateColumnConflicts(t *testing.T) {
	param := schema.Schema{Columns: []schema.Column{{Name: "ticker", Type: schema.Text}}}
	data := schema.Schema{Columns: []schema.Column{{Name: "ticker", Type: schema.Text}}}

	_, err := schema.Concat(param, data)
	require.Error(t, err)
	var conflict *schema.ConflictError
	assert.ErrorAs(t, err, &conflict)
}
