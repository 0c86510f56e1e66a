package service

import (
	"encoding/json"
	"fmt"

	"quickcart/internal/domain"
)

// Keys under which checkout metadata travels inside a card session.
const (
	metaOrderNumber   = "orderNumber"
	metaCustomerName  = "customerName"
	metaCustomerEmail = "customerEmail"
	metaClerkUserID   = "clerkUserId"
	metaAddress       = "address"
)

func encodeSessionMetadata(m domain.Metadata) (map[string]string, error) {
	out := map[string]string{
		metaOrderNumber:   m.OrderNumber,
		metaCustomerName:  m.CustomerName,
		metaCustomerEmail: m.CustomerEmail,
		metaClerkUserID:   m.ClerkUserID,
		metaAddress:       "",
	}
	if m.Address != nil {
		b, err := json.Marshal(m.Address)
		if err != nil {
			return nil, fmt.Errorf("encode address: %w", err)
		}
		out[metaAddress] = string(b)
	}
	return out, nil
}

// decodeSessionMetadata rebuilds checkout metadata from a completed session.
// A malformed address is an error, not a missing address.
func decodeSessionMetadata(md map[string]string, fallbackEmail string) (domain.Metadata, error) {
	address, err := domain.ParseAddressJSON(md[metaAddress])
	if err != nil {
		return domain.Metadata{}, err
	}
	m := domain.Metadata{
		OrderNumber:   md[metaOrderNumber],
		CustomerName:  md[metaCustomerName],
		CustomerEmail: md[metaCustomerEmail],
		ClerkUserID:   md[metaClerkUserID],
		Address:       address,
		PaymentMethod: domain.PaymentCard,
	}
	if m.CustomerEmail == "" {
		m.CustomerEmail = fallbackEmail
	}
	return m, nil
}
