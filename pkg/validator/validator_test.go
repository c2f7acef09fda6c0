package validator

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required,productid"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type rangeStruct struct {
	Count  int    `json:"count" validate:"gte=1,lte=10"`
	Status string `json:"status" validate:"oneof=active inactive"`
	Ref    string `validate:"omitempty,uuid"`
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	require.Error(t, err)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	return valErr.Fields()
}

func TestValidate_Success(t *testing.T) {
	assert.NoError(t, Validate(addItemRequest{ProductID: "prod-1"}))
	q := 0
	assert.NoError(t, Validate(setQuantityRequest{Quantity: &q}))
}

func TestValidate_MissingRequired_UsesJSONName(t *testing.T) {
	fields := fieldsOf(t, Validate(addItemRequest{}))
	assert.Equal(t, "is required", fields["product_id"])
}

func TestValidate_NilPointerRequired(t *testing.T) {
	fields := fieldsOf(t, Validate(setQuantityRequest{}))
	assert.Equal(t, "is required", fields["quantity"])
}

func TestValidate_ProductID(t *testing.T) {
	bad := []string{"has space", "tab\tinside", " lead", strings.Repeat("x", maxProductIDLen+1)}
	for _, id := range bad {
		fields := fieldsOf(t, Validate(addItemRequest{ProductID: id}))
		assert.Contains(t, fields["product_id"], "product identifier", "id %q", id)
	}
	assert.NoError(t, Validate(addItemRequest{ProductID: strings.Repeat("x", maxProductIDLen)}))
}

func TestValidate_RangeAndOneOf(t *testing.T) {
	fields := fieldsOf(t, Validate(rangeStruct{Count: 11, Status: "deleted", Ref: "nope"}))
	assert.Contains(t, fields["count"], "10")
	assert.Contains(t, fields["status"], "one of")
	assert.Equal(t, "must be a valid UUID", fields["Ref"])
}

func TestValidationError_ErrorString(t *testing.T) {
	err := Validate(addItemRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 'product_id'")
	assert.Contains(t, err.Error(), "is required")
}

func TestDecodeAndValidate_Success(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"product_id":"p-7"}`))

	var body addItemRequest
	require.NoError(t, DecodeAndValidate(req, &body))
	assert.Equal(t, "p-7", body.ProductID)
}

func TestDecodeAndValidate_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{invalid"))

	var body addItemRequest
	err := DecodeAndValidate(req, &body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}

func TestDecodeAndValidate_UnknownField(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":"p","price":0}`))

	var body addItemRequest
	err := DecodeAndValidate(req, &body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}

func TestDecodeAndValidate_ValidationFails(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":""}`))

	var body addItemRequest
	err := DecodeAndValidate(req, &body)
	var valErr *ValidationError
	assert.ErrorAs(t, err, &valErr)
}
