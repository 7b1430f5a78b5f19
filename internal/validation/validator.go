package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// ErrInvalidOrderEvent wraps every reason an order event is rejected.
var ErrInvalidOrderEvent = errors.New("invalid order event")

// New returns a configured validator with the custom tags registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// product_ids: comma-separated list with no empty entries.
	_ = v.RegisterValidation("product_ids", productIDsValidation)

	return v
}

func productIDsValidation(fl validatorv10.FieldLevel) bool {
	for _, p := range strings.Split(fl.Field().String(), ",") {
		if strings.TrimSpace(p) == "" {
			return false
		}
	}
	return true
}

// SplitProductIDs splits a comma list, trimming blanks and dropping empties.
func SplitProductIDs(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DecodeOrderEvent parses a raw webhook body and checks that the customer and
// line_items blocks are present. The order number is returned even when
// validation fails so callers can log it.
func DecodeOrderEvent(body []byte, v *validatorv10.Validate) (OrderEvent, error) {
	var ev OrderEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrInvalidOrderEvent, err)
	}
	if err := v.Struct(ev); err != nil {
		return ev, fmt.Errorf("%w: missing %s", ErrInvalidOrderEvent, strings.Join(missingFields(err), ", "))
	}
	return ev, nil
}

func missingFields(err error) []string {
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(ve))
	for _, fe := range ve {
		out = append(out, jsonName(fe.Field()))
	}
	return out
}

func jsonName(field string) string {
	switch field {
	case "Customer":
		return "customer"
	case "LineItems":
		return "line_items"
	default:
		return field
	}
}
