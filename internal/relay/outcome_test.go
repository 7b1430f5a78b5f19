package relay

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeStatus(t *testing.T) {
	cases := map[Kind]int{
		Success:                 http.StatusOK,
		NoFulfillableItems:      http.StatusOK,
		DuplicateDelivery:       http.StatusOK,
		MethodNotAllowed:        http.StatusMethodNotAllowed,
		ValidationFailed:        http.StatusBadRequest,
		SignatureInvalid:        http.StatusUnauthorized,
		DeliveryInProgress:      http.StatusConflict,
		ConfigurationMissing:    http.StatusInternalServerError,
		VendorRejected:          http.StatusInternalServerError,
		VendorUnreachable:       http.StatusInternalServerError,
		VendorResponseMalformed: http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, Outcome{Kind: kind}.Status(), kind.String())
	}
}

func TestOutcomeBody(t *testing.T) {
	assert.Equal(t, "Webhook processing failed: vendor returned an error: Invalid product ID",
		Outcome{Kind: VendorRejected, Reason: "Invalid product ID"}.Body())
	assert.Equal(t, "Webhook processing failed: could not parse vendor response: <html>",
		Outcome{Kind: VendorResponseMalformed, Reason: "<html>"}.Body())
	assert.Equal(t, "unknown", Kind(99).String())
}
