package domain_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickcart/internal/domain"
)

func TestNewOrderNumber(t *testing.T) {
	now := time.Date(2026, 3, 7, 15, 0, 0, 0, time.UTC)
	re := regexp.MustCompile(`^ORD-20260307-[0-9A-F]{6}$`)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		n := domain.NewOrderNumber(now)
		assert.Regexp(t, re, n)
		seen[n] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestParsePaymentMethod(t *testing.T) {
	tests := []struct {
		tag     string
		want    domain.PaymentMethod
		wantErr bool
	}{
		{tag: "", want: domain.PaymentCard},
		{tag: "card", want: domain.PaymentCard},
		{tag: "stripe", want: domain.PaymentCard},
		{tag: "bkash", want: domain.PaymentMobileMoney},
		{tag: "mobile-money", want: domain.PaymentMobileMoney},
		{tag: "COD", want: domain.PaymentCOD},
		{tag: "cash_on_delivery", want: domain.PaymentCOD},
		{tag: "paypal", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, err := domain.ParsePaymentMethod(tt.tag)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidPaymentMethod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAddressJSON(t *testing.T) {
	a, err := domain.ParseAddressJSON("")
	require.NoError(t, err)
	assert.Nil(t, a)

	a, err = domain.ParseAddressJSON("null")
	require.NoError(t, err)
	assert.Nil(t, a)

	a, err = domain.ParseAddressJSON(`{"name":"Rafi","address":"12 Lake Rd","city":"Dhaka","state":"Dhaka","zip":"1207"}`)
	require.NoError(t, err)
	assert.Equal(t, &domain.Address{Name: "Rafi", Address: "12 Lake Rd", City: "Dhaka", State: "Dhaka", Zip: "1207"}, a)

	_, err = domain.ParseAddressJSON(`{"name":`)
	assert.Error(t, err)
}

func TestAddressValidate(t *testing.T) {
	full := domain.Address{Name: "n", Address: "a", City: "c", State: "s", Zip: "z"}
	assert.NoError(t, full.Validate())

	partial := full
	partial.Zip = " "
	err := partial.Validate()
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.EqualError(t, err, "Incomplete address information")
}

func TestMetadataNormalize(t *testing.T) {
	m := domain.Metadata{CustomerName: " Ana ", CustomerEmail: "ana@example.com"}
	require.NoError(t, m.Normalize(time.Now()))

	assert.Equal(t, "Ana", m.CustomerName)
	assert.Equal(t, domain.PaymentCard, m.PaymentMethod)
	assert.NotEmpty(t, m.OrderNumber)

	keep := domain.Metadata{CustomerName: "a", CustomerEmail: "b", OrderNumber: "ORD-1"}
	require.NoError(t, keep.Normalize(time.Now()))
	assert.Equal(t, "ORD-1", keep.OrderNumber)

	missing := domain.Metadata{CustomerName: "a"}
	assert.ErrorIs(t, missing.Normalize(time.Now()), domain.ErrInvalidInput)
}

func TestValidateLineItems(t *testing.T) {
	assert.ErrorIs(t, domain.ValidateLineItems(nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, domain.ValidateLineItems([]domain.LineItem{{ProductID: "p", Quantity: 0}}), domain.ErrInvalidInput)
	assert.ErrorIs(t, domain.ValidateLineItems([]domain.LineItem{{Quantity: 1}}), domain.ErrInvalidInput)
	assert.NoError(t, domain.ValidateLineItems([]domain.LineItem{{ProductID: "p", Quantity: 3}}))
}

func TestProductPricing(t *testing.T) {
	p := domain.Product{Price: decimal.NewFromInt(100), Discount: decimal.NewFromInt(10)}
	assert.True(t, decimal.NewFromInt(10).Equal(p.UnitDiscount()))
	assert.True(t, decimal.NewFromInt(90).Equal(p.DiscountedPrice()))
	assert.Equal(t, int64(10000), p.MinorUnits())

	half := domain.Product{Price: decimal.RequireFromString("19.995")}
	assert.Equal(t, int64(2000), half.MinorUnits())
}
