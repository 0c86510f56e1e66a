package repo

import (
	"testing"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"quickcart/internal/domain"
)

func rawField(t *testing.T, v any) bson.RawValue {
	t.Helper()
	b, err := bson.Marshal(bson.M{"v": v})
	require.NoError(t, err)
	return bson.Raw(b).Lookup("v")
}

func TestStockFromRaw(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want *int64
	}{
		{name: "int32", v: int32(5), want: lo.ToPtr[int64](5)},
		{name: "int64", v: int64(7), want: lo.ToPtr[int64](7)},
		{name: "double", v: 3.0, want: lo.ToPtr[int64](3)},
		{name: "string", v: "plenty", want: nil},
		{name: "null", v: nil, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stockFromRaw(rawField(t, tt.v)))
		})
	}

	assert.Nil(t, stockFromRaw(bson.RawValue{}), "missing field")
}

func TestDecimalFromRaw(t *testing.T) {
	d128, err := toDecimal128(decimal.RequireFromString("19.99"))
	require.NoError(t, err)

	for _, v := range []any{d128, 19.99} {
		got, err := decimalFromRaw(rawField(t, v))
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("19.99").Equal(got), got.String())
	}

	got, err := decimalFromRaw(rawField(t, int32(500)))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(500).Equal(got))

	_, err = decimalFromRaw(rawField(t, "19.99"))
	assert.Error(t, err)
}

func TestNewOrderDoc_RejectsUnrepresentableAmounts(t *testing.T) {
	order := &domain.Order{
		ID:          uuid.New(),
		OrderNumber: "ORD-20260101-ABC123",
		TotalPrice:  decimal.New(1, 7000),
	}

	_, err := newOrderDoc(order)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total price")
}
