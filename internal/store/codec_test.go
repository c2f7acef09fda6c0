package store

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/agricoventas/internal/domain"
)

func sampleLines() []domain.CartLine {
	return []domain.CartLine{
		{
			ProductID:   "P1",
			Name:        "Tomate chonto",
			Price:       decimal.NewFromInt(1000),
			UnitMeasure: "kg",
			ImageURL:    "https://img.example.com/tomate.jpg",
			SellerName:  "Finca El Roble",
			Quantity:    2,
			Stock:       domain.Finite(5),
		},
		{
			ProductID:   "P2",
			Name:        "Miel",
			Price:       decimal.RequireFromString("12500.50"),
			UnitMeasure: "frasco",
			Quantity:    7,
			Stock:       domain.Unbounded(),
		},
	}
}

func TestEncode_WritesVersionedEnvelope(t *testing.T) {
	data, err := Encode(sampleLines()[:1])
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, SchemaVersion, raw["version"])

	lines := raw["lines"].([]any)
	require.Len(t, lines, 1)
	rec := lines[0].(map[string]any)
	assert.Equal(t, "P1", rec["productId"])
	assert.EqualValues(t, 5, rec["stockQuantity"])
	assert.EqualValues(t, 2, rec["quantity"])
	assert.NotContains(t, rec, "unlimitedStock")
}

func TestEncode_UnboundedStock(t *testing.T) {
	data, err := Encode(sampleLines()[1:])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stockQuantity":null`)
	assert.Contains(t, string(data), `"unlimitedStock":true`)
}

func TestEncode_EmptyCart(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"lines":[]}`, string(data))

	lines, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestRoundTrip(t *testing.T) {
	want := sampleLines()
	data, err := Encode(want)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assertSameLines(t, want, got)
	assert.Equal(t, want[0].SellerName, got[0].SellerName)
	assert.Equal(t, want[0].ImageURL, got[0].ImageURL)
	assert.Equal(t, want[1].UnitMeasure, got[1].UnitMeasure)
}

func TestDecode_LegacyArray(t *testing.T) {
	raw := `[{"productId":"P1","name":"Tomate","price":1000,"unitMeasure":"kg","quantity":2,"stockQuantity":5}]`
	lines, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "P1", lines[0].ProductID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, domain.Finite(5), lines[0].Stock)
	assert.True(t, lines[0].Price.Equal(decimal.NewFromInt(1000)))
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]string{
		"missing stock":        `[{"productId":"P1","quantity":2}]`,
		"null stock":           `[{"productId":"P1","quantity":2,"stockQuantity":null}]`,
		"string stock":         `[{"productId":"P1","quantity":2,"stockQuantity":"5"}]`,
		"fractional stock":     `[{"productId":"P1","quantity":2,"stockQuantity":4.5}]`,
		"negative stock":       `[{"productId":"P1","quantity":1,"stockQuantity":-1}]`,
		"zero quantity":        `[{"productId":"P1","quantity":0,"stockQuantity":5}]`,
		"quantity over stock":  `[{"productId":"P1","quantity":6,"stockQuantity":5}]`,
		"missing product":      `[{"quantity":1,"stockQuantity":5}]`,
		"negative price":       `[{"productId":"P1","quantity":1,"stockQuantity":5,"price":-3}]`,
		"duplicate product":    `[{"productId":"P1","quantity":1,"stockQuantity":5},{"productId":"P1","quantity":1,"stockQuantity":5}]`,
		"not an array":         `"cart"`,
		"garbage":              `{{not-json`,
		"empty":                ``,
		"envelope w/out lines": `{"version":1}`,
		"object in array slot": `[1,2,3]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			lines, err := Decode([]byte(raw))
			assert.Nil(t, lines)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPayload)

			var vErr *ValidationError
			assert.True(t, errors.As(err, &vErr))
		})
	}
}

func TestDecode_ReportsLineIndex(t *testing.T) {
	raw := `[{"productId":"P1","quantity":1,"stockQuantity":5},{"productId":"P2","quantity":1}]`
	_, err := Decode([]byte(raw))

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 1, vErr.Index)
	assert.Contains(t, vErr.Error(), "line 1")
}

func TestDecode_UnsupportedVersion(t *testing.T) {
	for _, raw := range []string{`{"version":2,"lines":[]}`, `{"version":0,"lines":[]}`} {
		_, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	}
}

func TestDecode_UnlimitedWithoutQuantity(t *testing.T) {
	raw := `{"version":1,"lines":[{"productId":"P1","quantity":40,"unlimitedStock":true}]}`
	lines, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.True(t, lines[0].Stock.IsUnbounded())
	assert.Equal(t, 40, lines[0].Quantity)
}
