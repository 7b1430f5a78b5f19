package fulfillments

import "time"

// Record statuses
const (
	StatusRelayed = "RELAYED" // vendor accepted the order
	StatusSkipped = "SKIPPED" // nothing to relay
	StatusFailed  = "FAILED"  // rejected or not delivered; the storefront may retry
)

// Event is published once per relay attempt and consumed by the worker.
type Event struct {
	EventID     string    `json:"event_id"`
	RequestID   string    `json:"request_id,omitempty"`
	OrderNumber string    `json:"order_number"`
	Outcome     string    `json:"outcome"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	ProductIDs  string    `json:"product_ids,omitempty"`
	HTTPStatus  int       `json:"http_status"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Record represents the item stored in the fulfillments DynamoDB table, one
// per storefront order number.
type Record struct {
	OrderNumber string    `dynamodbav:"order_number"` // PK
	Status      string    `dynamodbav:"status"`       // RELAYED | SKIPPED | FAILED
	LastOutcome string    `dynamodbav:"last_outcome"`
	LastReason  string    `dynamodbav:"last_reason,omitempty"`
	LastEventID string    `dynamodbav:"last_event_id"`
	ProductIDs  string    `dynamodbav:"product_ids,omitempty"`
	Attempts    int       `dynamodbav:"attempts"`
	CreatedAt   time.Time `dynamodbav:"created_at"`
	UpdatedAt   time.Time `dynamodbav:"updated_at"`

	// LastOccurredAt orders events; only a newer event replaces the outcome fields.
	LastOccurredAt string   `dynamodbav:"last_occurred_at"`
	AppliedEvents  []string `dynamodbav:"applied_event_ids,stringset,omitempty"`
}
