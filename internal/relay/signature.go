package relay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignatureHeader carries the storefront's HMAC of the raw request body.
const SignatureHeader = "X-Shopify-Hmac-Sha256"

// DeliveryHeader carries the storefront's unique id for one webhook delivery.
const DeliveryHeader = "X-Shopify-Webhook-Id"

// Sign returns base64(HMAC-SHA256(secret, body)), the value the storefront
// puts in SignatureHeader.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares signature against the expected HMAC in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
