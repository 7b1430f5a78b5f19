package fulfillments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/imrishuroy/shopify-download-relay/internal/aws"
)

// Notifier publishes relay outcomes to the fulfillment events queue.
type Notifier struct {
	publisher *aws.Publisher
}

// NewNotifier returns a Notifier sending through publisher.
func NewNotifier(publisher *aws.Publisher) *Notifier {
	return &Notifier{publisher: publisher}
}

// Notify enqueues ev.
func (n *Notifier) Notify(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return n.publisher.Send(ctx, string(body), map[string]string{
		"event_id":     ev.EventID,
		"order_number": ev.OrderNumber,
		"outcome":      ev.Outcome,
		"request_id":   ev.RequestID,
	})
}
