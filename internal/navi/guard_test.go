package navi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/navi/internal/navi"
	"github.com/Checker-Finance/navi/pkg/model"
	"github.com/Checker-Finance/navi/pkg/money"
)

func completeShipping() model.ShippingInfo {
	return model.ShippingInfo{
		CompanyName: "Dealer KK",
		PostalCode:  "530-0001",
		Address:     "1-1 Umeda, Osaka",
		Tel:         "06-0000-0000",
		PersonName:  "Sato",
	}
}

func TestValidateShipping_NamesMissingFields(t *testing.T) {
	require.NoError(t, navi.ValidateShipping(completeShipping()))

	s := completeShipping()
	s.PersonName = "  "
	s.Tel = ""
	err := navi.ValidateShipping(s)
	require.ErrorIs(t, err, navi.ErrValidationFailed)

	var ve *navi.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"tel", "personName"}, ve.Fields)
	assert.Equal(t, "validation failed: missing tel, personName", err.Error())
}

func TestValidateShipping_PostalCodeOptional(t *testing.T) {
	s := completeShipping()
	s.PostalCode = ""
	assert.NoError(t, navi.ValidateShipping(s))
}

func TestResolveContact(t *testing.T) {
	contacts := []model.Contact{{ID: "c1", Name: "Sato"}, {ID: "c2", Name: "Tanaka"}}

	got, err := navi.ResolveContact(model.ShippingInfo{PersonName: " Tanaka "}, contacts)
	require.NoError(t, err)
	assert.Equal(t, "c2", got.ID)

	got, err = navi.ResolveContact(model.ShippingInfo{ContactID: "c1", PersonName: "ignored"}, contacts)
	require.NoError(t, err)
	assert.Equal(t, "Sato", got.Name)

	_, err = navi.ResolveContact(model.ShippingInfo{ContactID: "c9"}, contacts)
	assert.ErrorIs(t, err, navi.ErrNotFound)

	_, err = navi.ResolveContact(model.ShippingInfo{PersonName: "Suzuki"}, contacts)
	var ve *navi.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"personName"}, ve.Fields)
}

func TestValidateItems(t *testing.T) {
	assert.ErrorIs(t, navi.ValidateItems(nil), navi.ErrValidationFailed)
	assert.NoError(t, navi.ValidateItems([]model.LineItem{{Quantity: 0, UnitPrice: 0}}))

	err := navi.ValidateItems([]model.LineItem{
		{Quantity: 1, UnitPrice: 100},
		{Quantity: -1, UnitPrice: -5, Amount: money.Ptr(-3)},
	})
	var ve *navi.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"items[1].quantity", "items[1].unitPrice", "items[1].amount"}, ve.Fields)
	assert.Equal(t, "negative", ve.Reason)
}
