package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UnknownOrderNumber stands in for a missing order number in diagnostics.
const UnknownOrderNumber = "unknown"

// OrderNumber is the storefront's order number. Shopify sends it as a JSON
// number; manual replays often send a string. Both are accepted.
type OrderNumber string

func (n *OrderNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*n = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = OrderNumber(s)
	default:
		var num json.Number
		if err := json.Unmarshal(b, &num); err != nil {
			return fmt.Errorf("order_number: %w", err)
		}
		*n = OrderNumber(num.String())
	}
	return nil
}

// OrDefault returns the order number, or UnknownOrderNumber when absent.
func (n OrderNumber) OrDefault() string {
	if n == "" {
		return UnknownOrderNumber
	}
	return string(n)
}

// Customer is the buyer block of an order event. Email is forwarded to the
// vendor as-is.
type Customer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// LineItem is one order line. SKU doubles as the vendor product id and may be
// null or empty for items the vendor does not fulfil.
type LineItem struct {
	SKU   string `json:"sku"`
	Title string `json:"title"` // diagnostics only
}

// OrderEvent is the storefront "order paid" webhook payload.
type OrderEvent struct {
	OrderNumber OrderNumber `json:"order_number"`
	Customer    *Customer   `json:"customer" validate:"required"`
	LineItems   []LineItem  `json:"line_items" validate:"required"`
}

// ManualOrderRequest is the payload for POST /admin/orders.
type ManualOrderRequest struct {
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	ProductIDs string `json:"product_ids" validate:"required,product_ids"` // e.g. "45234,34555"
}
