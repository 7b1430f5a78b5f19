package relay

import "net/http"

// Kind classifies the result of one relay invocation.
type Kind int

const (
	Success Kind = iota
	NoFulfillableItems
	DuplicateDelivery
	MethodNotAllowed
	ValidationFailed
	SignatureInvalid
	DeliveryInProgress
	ConfigurationMissing
	VendorRejected
	VendorUnreachable
	VendorResponseMalformed
)

var kindNames = map[Kind]string{
	Success:                 "success",
	NoFulfillableItems:      "no_fulfillable_items",
	DuplicateDelivery:       "duplicate_delivery",
	MethodNotAllowed:        "method_not_allowed",
	ValidationFailed:        "validation_failed",
	SignatureInvalid:        "signature_invalid",
	DeliveryInProgress:      "delivery_in_progress",
	ConfigurationMissing:    "configuration_missing",
	VendorRejected:          "vendor_rejected",
	VendorUnreachable:       "vendor_unreachable",
	VendorResponseMalformed: "vendor_response_malformed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Outcome is the classified result handed back to the transport layer.
// Reason holds the vendor's error text, the transport failure, the raw
// malformed body, or the validation detail, depending on Kind.
type Outcome struct {
	Kind        Kind
	Reason      string
	Anomalous   bool // vendor accepted the order with an unrecognised reply
	OrderNumber string
	ProductIDs  string
}

// Status maps the outcome onto the HTTP status returned to the storefront.
// 5xx answers are retryable by the sender, 4xx are not, except 409.
func (o Outcome) Status() int {
	switch o.Kind {
	case Success, NoFulfillableItems, DuplicateDelivery:
		return http.StatusOK
	case MethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ValidationFailed:
		return http.StatusBadRequest
	case SignatureInvalid:
		return http.StatusUnauthorized
	case DeliveryInProgress:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Body is the plain-text response body.
func (o Outcome) Body() string {
	switch o.Kind {
	case Success:
		return "Webhook processed successfully."
	case NoFulfillableItems:
		return "No products to process."
	case DuplicateDelivery:
		return "Webhook already processed."
	case MethodNotAllowed:
		return "Method Not Allowed"
	case ValidationFailed:
		return "Invalid payload"
	case SignatureInvalid:
		return "Invalid webhook signature"
	case DeliveryInProgress:
		return "Webhook delivery already in progress."
	case ConfigurationMissing:
		return "Server configuration error."
	default:
		return "Webhook processing failed: " + o.failure()
	}
}

// Failed reports whether the vendor leg failed in a way the sender may retry.
func (o Outcome) Failed() bool {
	switch o.Kind {
	case VendorRejected, VendorUnreachable, VendorResponseMalformed:
		return true
	}
	return false
}

func (o Outcome) failure() string {
	switch o.Kind {
	case VendorRejected:
		return "vendor returned an error: " + o.Reason
	case VendorUnreachable:
		return "vendor request failed: " + o.Reason
	case VendorResponseMalformed:
		return "could not parse vendor response: " + o.Reason
	default:
		return o.Reason
	}
}
