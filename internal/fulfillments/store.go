package fulfillments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/shopify-download-relay/internal/aws"
)

// ErrDuplicateEvent is returned when the event was already applied.
var ErrDuplicateEvent = errors.New("event already recorded")

// Store encapsulates operations on the fulfillments table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new fulfillments Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// occurredLayout is fixed width so that stored timestamps compare
// lexicographically in condition expressions.
const occurredLayout = "2006-01-02T15:04:05.000000000Z"

// RecordAttempt upserts the order's record with ev and bumps its attempts
// counter. Every applied event id is kept on the record, so replaying any
// earlier event (SQS redelivery) returns ErrDuplicateEvent and leaves the
// record untouched. An event older than the one already applied is counted
// but does not replace the outcome fields.
func (s *Store) RecordAttempt(ctx context.Context, ev Event) error {
	if ev.OrderNumber == "" || ev.EventID == "" {
		return fmt.Errorf("record attempt: order number and event id are required")
	}
	now := s.nowFunc().UTC().Format(time.RFC3339)
	occurred := ev.OccurredAt.UTC().Format(occurredLayout)

	key := map[string]types.AttributeValue{
		"order_number": &types.AttributeValueMemberS{Value: ev.OrderNumber},
	}

	latest := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key:       key,
		UpdateExpression: awsString("SET #s = :s, last_outcome = :o, last_reason = :r, product_ids = :p, " +
			"last_event_id = :e, last_occurred_at = :t, updated_at = :ua, created_at = if_not_exists(created_at, :ua) " +
			"ADD attempts :one, applied_event_ids :eset"),
		ConditionExpression: awsString("NOT contains(applied_event_ids, :e) AND " +
			"(attribute_not_exists(last_occurred_at) OR last_occurred_at <= :t)"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s":    &types.AttributeValueMemberS{Value: ev.Status},
			":o":    &types.AttributeValueMemberS{Value: ev.Outcome},
			":r":    &types.AttributeValueMemberS{Value: ev.Reason},
			":p":    &types.AttributeValueMemberS{Value: ev.ProductIDs},
			":e":    &types.AttributeValueMemberS{Value: ev.EventID},
			":t":    &types.AttributeValueMemberS{Value: occurred},
			":ua":   &types.AttributeValueMemberS{Value: now},
			":one":  &types.AttributeValueMemberN{Value: "1"},
			":eset": &types.AttributeValueMemberSS{Value: []string{ev.EventID}},
		},
	}
	_, err := s.client.UpdateItem(ctx, latest)
	if err == nil {
		return nil
	}
	if !isConditionFailure(err) {
		return fmt.Errorf("update item: %w", err)
	}

	// Either a replay or an out-of-order event. Count the latter only.
	stale := &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 key,
		UpdateExpression:    awsString("SET updated_at = :ua ADD attempts :one, applied_event_ids :eset"),
		ConditionExpression: awsString("NOT contains(applied_event_ids, :e)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":e":    &types.AttributeValueMemberS{Value: ev.EventID},
			":ua":   &types.AttributeValueMemberS{Value: now},
			":one":  &types.AttributeValueMemberN{Value: "1"},
			":eset": &types.AttributeValueMemberSS{Value: []string{ev.EventID}},
		},
	}
	if _, err := s.client.UpdateItem(ctx, stale); err != nil {
		if isConditionFailure(err) {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("update item (out of order): %w", err)
	}
	return nil
}

func isConditionFailure(err error) bool {
	var cc *types.ConditionalCheckFailedException
	return errors.As(err, &cc)
}

// Get fetches a record by order number. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderNumber string) (*Record, error) {
	key := map[string]types.AttributeValue{
		"order_number": &types.AttributeValueMemberS{Value: orderNumber},
	}
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var r Record
	if err := attributevalue.UnmarshalMap(out.Item, &r); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &r, nil
}

func awsString(s string) *string { return &s }
