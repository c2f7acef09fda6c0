package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Totals
// ============================================================================

func TestTotals_TwoLines(t *testing.T) {
	lines := []CartLine{
		{ProductID: "P1", Quantity: 2, Price: decimal.NewFromInt(1000)},
		{ProductID: "P2", Quantity: 1, Price: decimal.NewFromInt(5000)},
	}
	assert.Equal(t, 3, TotalItems(lines))
	assert.True(t, TotalPrice(lines).Equal(decimal.NewFromInt(7000)))
}

func TestTotals_Empty(t *testing.T) {
	assert.Equal(t, 0, TotalItems(nil))
	assert.True(t, TotalPrice(nil).IsZero())
}

func TestTotalPrice_FractionalPricesAreExact(t *testing.T) {
	lines := []CartLine{
		{Quantity: 3, Price: decimal.RequireFromString("0.1")},
		{Quantity: 1, Price: decimal.RequireFromString("0.2")},
	}
	assert.Equal(t, "0.5", TotalPrice(lines).String())
}

func TestFindLine(t *testing.T) {
	lines := []CartLine{{ProductID: "P1"}, {ProductID: "P2"}}
	assert.Equal(t, 0, FindLine(lines, "P1"))
	assert.Equal(t, 1, FindLine(lines, "P2"))
	assert.Equal(t, -1, FindLine(lines, "P9"))
	assert.Equal(t, -1, FindLine(nil, "P1"))
}

// ============================================================================
// LineInput
// ============================================================================

func TestLineInput_Validate(t *testing.T) {
	ok := LineInput{ProductID: "P1", Price: decimal.NewFromInt(10)}
	assert.NoError(t, ok.Validate())

	assert.ErrorIs(t, LineInput{Price: decimal.NewFromInt(10)}.Validate(), ErrMissingProductID)
	assert.ErrorIs(t, LineInput{ProductID: "P1", Price: decimal.NewFromInt(-1)}.Validate(), ErrNegativePrice)
}

func TestLineInput_NewLine(t *testing.T) {
	in := LineInput{
		ProductID:   "P1",
		Name:        "Papa criolla",
		Price:       decimal.NewFromInt(3500),
		UnitMeasure: "kg",
		SellerName:  "Finca La Esperanza",
		Stock:       Finite(4),
	}
	line := in.NewLine()
	assert.Equal(t, 1, line.Quantity)
	assert.Equal(t, "P1", line.ProductID)
	assert.Equal(t, "kg", line.UnitMeasure)
	assert.Equal(t, 4, line.Stock.Limit())
}

// ============================================================================
// StockBound
// ============================================================================

func TestFinite_NegativeIsZero(t *testing.T) {
	b := Finite(-3)
	assert.Equal(t, 0, b.Limit())
	assert.False(t, b.Available())
}

func TestStockBound_ZeroValueBlocks(t *testing.T) {
	var b StockBound
	assert.False(t, b.Available())
	assert.False(t, b.Allows(1))
}

func TestStockBound_Allows(t *testing.T) {
	b := Finite(3)
	assert.False(t, b.Allows(0))
	assert.True(t, b.Allows(1))
	assert.True(t, b.Allows(3))
	assert.False(t, b.Allows(4))

	u := Unbounded()
	assert.True(t, u.Allows(1_000_000))
	assert.False(t, u.Allows(0))
}

func TestStockBound_Clamp(t *testing.T) {
	b := Finite(3)
	assert.Equal(t, 3, b.Clamp(10))
	assert.Equal(t, 1, b.Clamp(0))
	assert.Equal(t, 1, b.Clamp(-5))
	assert.Equal(t, 2, b.Clamp(2))

	assert.Equal(t, 999, Unbounded().Clamp(999))
	assert.Equal(t, 1, Unbounded().Clamp(0))
}

func TestStockFromFloat(t *testing.T) {
	assert.Equal(t, 0, StockFromFloat(math.NaN()).Limit())
	assert.Equal(t, 0, StockFromFloat(math.Inf(1)).Limit())
	assert.Equal(t, 0, StockFromFloat(-2).Limit())
	assert.Equal(t, 7, StockFromFloat(7.9).Limit())
	assert.False(t, StockFromFloat(math.Inf(1)).IsUnbounded())
}

func TestStockBound_JSON(t *testing.T) {
	data, err := json.Marshal(Finite(5))
	require.NoError(t, err)
	assert.JSONEq(t, `{"quantity":5,"unlimited":false}`, string(data))

	data, err = json.Marshal(Unbounded())
	require.NoError(t, err)
	assert.JSONEq(t, `{"quantity":null,"unlimited":true}`, string(data))

	var b StockBound
	require.NoError(t, json.Unmarshal([]byte(`{"unlimited":true}`), &b))
	assert.True(t, b.IsUnbounded())

	require.NoError(t, json.Unmarshal([]byte(`{"quantity":2}`), &b))
	assert.Equal(t, Finite(2), b)

	require.NoError(t, json.Unmarshal([]byte(`{}`), &b))
	assert.False(t, b.Available())
}
