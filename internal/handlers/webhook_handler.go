package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/shopify-download-relay/internal/relay"
)

// Paths the storefront may be configured to deliver order webhooks to.
const (
	WebhookPath       = "/webhooks/shopify/orders"
	LegacyWebhookPath = "/api/shopify-webhook"
)

// maxWebhookBytes bounds the order payload read into memory.
const maxWebhookBytes = 5 << 20

// RegisterWebhookRoutes wires the order-paid webhook. Every method is routed
// to the relay so that it can answer 405 itself.
func RegisterWebhookRoutes(r *gin.Engine, cfg HandlerConfig) {
	h := func(c *gin.Context) {
		// only a POST body is worth reading; the relay turns the rest into 405
		var body []byte
		if c.Request.Method == http.MethodPost {
			var err error
			body, err = io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				c.String(http.StatusRequestEntityTooLarge, "Payload too large")
				return
			case err != nil:
				c.String(http.StatusBadRequest, "Invalid payload")
				return
			}
		}

		out := cfg.Relay.Handle(c.Request.Context(), relay.Request{
			Method:     c.Request.Method,
			Body:       body,
			Signature:  c.GetHeader(relay.SignatureHeader),
			DeliveryID: c.GetHeader(relay.DeliveryHeader),
			RequestID:  c.GetString(requestIDKey),
		})
		if out.Kind == relay.MethodNotAllowed {
			c.Header("Allow", http.MethodPost)
		}
		c.String(out.Status(), out.Body())
	}

	r.Any(WebhookPath, h)
	r.Any(LegacyWebhookPath, h)
}
