package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/shopify-download-relay/internal/aws"
	"github.com/imrishuroy/shopify-download-relay/internal/fulfillments"
)

// Processor applies relay outcome events to the fulfillments table.
type Processor struct {
	store *fulfillments.Store
	log   *slog.Logger
}

// NewProcessor creates a new worker processor with AWS clients injected.
func NewProcessor(clients *aws.AWSClients, fulfillmentsTable string, log *slog.Logger) *Processor {
	return &Processor{
		store: fulfillments.NewStore(clients.DynamoDB, fulfillmentsTable),
		log:   log.With("component", "worker"),
	}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	p.log.Info("received batch", "messages", len(ev.Records))
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. If failed too many times, message goes to DLQ.
			p.log.Error("worker error", "message_id", rec.MessageId, "error", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var ev fulfillments.Event
	if err := json.Unmarshal([]byte(rec.Body), &ev); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	log := p.log.With("order_number", ev.OrderNumber, "event_id", ev.EventID, "request_id", ev.RequestID)

	err := p.store.RecordAttempt(ctx, ev)
	if errors.Is(err, fulfillments.ErrDuplicateEvent) {
		// redelivered message, already applied
		log.Info("event already recorded")
		return nil
	}
	if err != nil {
		return fmt.Errorf("record attempt for order %s: %w", ev.OrderNumber, err)
	}

	log.Info("recorded fulfillment attempt", "outcome", ev.Outcome, "status", ev.Status)
	return nil
}
