package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Address struct {
	Name    string `json:"name" bson:"name"`
	Address string `json:"address" bson:"address"`
	City    string `json:"city" bson:"city"`
	State   string `json:"state" bson:"state"`
	Zip     string `json:"zip" bson:"zip"`
}

// Validate requires every field once an address is given.
func (a Address) Validate() error {
	for _, v := range []string{a.Name, a.Address, a.City, a.State, a.Zip} {
		if strings.TrimSpace(v) == "" {
			return Invalid("Incomplete address information")
		}
	}
	return nil
}

// ParseAddressJSON decodes an address that travelled as a JSON string in
// processor metadata. Empty input and the literal null yield nil.
func ParseAddressJSON(raw string) (*Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var a Address
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("decode address metadata: %w", err)
	}
	return &a, nil
}

type Metadata struct {
	OrderNumber   string        `json:"orderNumber"`
	CustomerName  string        `json:"customerName"`
	CustomerEmail string        `json:"customerEmail"`
	ClerkUserID   string        `json:"clerkUserId,omitempty"`
	Address       *Address      `json:"address,omitempty"`
	PaymentMethod PaymentMethod `json:"paymentMethod,omitempty"`
}

// Normalize fills the order number when missing and checks the customer
// fields every checkout path needs.
func (m *Metadata) Normalize(now time.Time) error {
	m.CustomerName = strings.TrimSpace(m.CustomerName)
	m.CustomerEmail = strings.TrimSpace(m.CustomerEmail)
	if m.CustomerName == "" || m.CustomerEmail == "" {
		return Invalid("customer name and email are required")
	}
	if m.Address != nil {
		if err := m.Address.Validate(); err != nil {
			return err
		}
	}
	if m.OrderNumber == "" {
		m.OrderNumber = NewOrderNumber(now)
	}
	if m.PaymentMethod == "" {
		m.PaymentMethod = PaymentCard
	}
	return nil
}

type LineItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func ValidateLineItems(items []LineItem) error {
	if len(items) == 0 {
		return Invalid("cart is empty")
	}
	for _, it := range items {
		if it.ProductID == "" {
			return Invalid("line item without product id")
		}
		if it.Quantity <= 0 {
			return Invalid(fmt.Sprintf("invalid quantity %d for product %s", it.Quantity, it.ProductID))
		}
	}
	return nil
}
