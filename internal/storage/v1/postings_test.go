package storage

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelstorage"
)

func TestNormalizePostings(t *testing.T) {
	postings := []modelstorage.Posting{
		{UserID: "b", CurrencyCode: "USD", Delta: decimal.NewFromInt(5)},
		{UserID: "a", CurrencyCode: "USD", Delta: decimal.NewFromInt(-5)},
		{UserID: "b", CurrencyCode: "USD", Delta: decimal.NewFromInt(2)},
		{UserID: "a", CurrencyCode: "EUR", Delta: decimal.NewFromInt(1)},
	}
	got := NormalizePostings(postings)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].UserID)
	assert.Equal(t, "EUR", got[0].CurrencyCode)
	assert.Equal(t, "a", got[1].UserID)
	assert.Equal(t, "USD", got[1].CurrencyCode)
	assert.Equal(t, "b", got[2].UserID)
	assert.True(t, got[2].Delta.Equal(decimal.NewFromInt(7)))
}
