package idempotency

import (
	"context"
	"errors"
	"fmt"
)

// Decision is the guard's verdict on one delivery.
type Decision int

const (
	// Proceed: first delivery, or a retry of a failed one.
	Proceed Decision = iota
	// Duplicate: an earlier delivery already completed.
	Duplicate
	// InFlight: an earlier delivery is still being relayed.
	InFlight
)

// Verdict carries the decision and, for duplicates, the stored response.
type Verdict struct {
	Decision       Decision
	ResponseStatus int
	ResponseBody   string
}

// Guard turns the Store into a begin/complete/fail protocol around one relay.
type Guard struct {
	store *Store
}

// NewGuard wraps store.
func NewGuard(store *Store) *Guard {
	return &Guard{store: store}
}

// Begin claims key for orderNumber.
func (g *Guard) Begin(ctx context.Context, key, orderNumber string) (Verdict, error) {
	created, err := g.store.CreateIfNotExists(ctx, key, orderNumber)
	if err != nil {
		return Verdict{}, err
	}
	if created {
		return Verdict{Decision: Proceed}, nil
	}

	rec, err := g.store.Get(ctx, key)
	if err != nil {
		return Verdict{}, err
	}
	if rec == nil {
		// expired between the put and the get
		return Verdict{}, fmt.Errorf("idempotency record %s vanished", key)
	}

	switch rec.Status {
	case StatusDone:
		return Verdict{Decision: Duplicate, ResponseStatus: rec.ResponseStatus, ResponseBody: rec.ResponseBody}, nil
	case StatusFailed:
		err := g.store.Reclaim(ctx, key)
		if errors.Is(err, ErrConditionFailed) {
			return Verdict{Decision: InFlight}, nil
		}
		if err != nil {
			return Verdict{}, err
		}
		return Verdict{Decision: Proceed}, nil
	case StatusInProgress:
		if !g.store.Stale(rec) {
			return Verdict{Decision: InFlight}, nil
		}
		err := g.store.ReclaimStale(ctx, key)
		if errors.Is(err, ErrConditionFailed) {
			return Verdict{Decision: InFlight}, nil
		}
		if err != nil {
			return Verdict{}, err
		}
		return Verdict{Decision: Proceed}, nil
	default:
		return Verdict{Decision: InFlight}, nil
	}
}

// Complete records the response sent for key.
func (g *Guard) Complete(ctx context.Context, key string, status int, body string) error {
	return g.store.MarkDone(ctx, key, body, status)
}

// Fail releases key so a redelivery may try again.
func (g *Guard) Fail(ctx context.Context, key, note string) error {
	return g.store.MarkFailed(ctx, key, note)
}
