package validate

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Kind  string `json:"kind" validate:"required,oneof=delivery pickup"`
	City  string `json:"city_id" validate:"required_if=Kind delivery"`
	Qty   int    `json:"qty" validate:"gt=0"`
	Notes string `json:"-"`
}

func TestStructReportsFields(t *testing.T) {
	err := Struct(sample{Kind: "delivery"})
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["city_id"])
	assert.Equal(t, "must be greater than 0", details["qty"])

	require.NoError(t, Struct(sample{Kind: "pickup", Qty: 1}))
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"kind":"pickup","qty":1,"extra":true}`))
	var dst sample
	err := DecodeJSONBody(req, &dst)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	req = httptest.NewRequest("POST", "/", strings.NewReader(`{"kind":"pickup","qty":2}`))
	require.NoError(t, DecodeJSONBody(req, &dst))
	assert.Equal(t, 2, dst.Qty)
}

func TestTrim(t *testing.T) {
	assert.Equal(t, "abc", Trim("  abcdef ", 3))
	assert.Equal(t, "abc", Trim(" abc ", 0))
}
