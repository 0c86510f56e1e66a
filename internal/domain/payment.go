package domain

import (
	"fmt"
	"strings"
)

type PaymentMethod string

const (
	PaymentCard        PaymentMethod = "card"
	PaymentMobileMoney PaymentMethod = "mobile_money"
	PaymentCOD         PaymentMethod = "cod"
)

// Processor id placeholders for orders that never touch a card session.
const (
	SessionCOD         = "cash_on_delivery"
	SessionMobileMoney = "mobile_money"
)

// ParsePaymentMethod maps a request tag onto a payment method. An empty tag
// selects card. The legacy storefront tags stripe, bkash and
// cash_on_delivery are accepted as aliases.
func ParsePaymentMethod(tag string) (PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "", "card", "stripe":
		return PaymentCard, nil
	case "mobile_money", "mobile-money", "bkash":
		return PaymentMobileMoney, nil
	case "cod", "cash_on_delivery", "cash-on-delivery":
		return PaymentCOD, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, tag)
}
