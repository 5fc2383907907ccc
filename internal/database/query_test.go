package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lofcz/minfold/internal/errs"
)

func TestSelectBuilderPostgres(t *testing.T) {
	query, args, err := Select("users", DialectPostgres).
		Columns("id", "name").
		Where("status", "=", 2).
		Where("name", "LIKE", "a%").
		OrderBy("id").
		Limit(10).
		Build()
	require.NoError(t, err)

	assert.Equal(t, `SELECT "id", "name" FROM "users" WHERE "status" = $1 AND "name" LIKE $2 ORDER BY "id" LIMIT $3`, query)
	assert.Equal(t, []any{2, "a%", 10}, args)
}

func TestSelectBuilderMySQL(t *testing.T) {
	query, args, err := Select("users", DialectMySQL).
		Where("id", ">", 5).
		Limit(3).
		Build()
	require.NoError(t, err)

	assert.Equal(t, `SELECT * FROM "users" WHERE "id" > ? LIMIT ?`, query)
	assert.Equal(t, []any{5, 3}, args)
}

func TestSelectBuilderRejectsUnknownOperator(t *testing.T) {
	_, _, err := Select("users", DialectPostgres).
		Where("name", "; DROP TABLE users; --", "x").
		Build()
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"users"`, QuoteIdent("users"))
	assert.Equal(t, `"we""ird"`, QuoteIdent(`we"ird`))
}
