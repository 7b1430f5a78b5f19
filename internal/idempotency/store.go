package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/shopify-download-relay/internal/aws"
)

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client      aws.DynamoDBAPI
	tableName   string
	ttlWindow   time.Duration // default TTL window when creating entries
	leaseWindow time.Duration // how long an IN_PROGRESS claim is honoured
	nowFunc     func() time.Time
}

// NewStore returns a configured Store.
// tableName: DynamoDB table name for idempotency entries.
// ttlWindow: default TTL window (e.g., 48*time.Hour)
// leaseWindow: how long a claim may stay IN_PROGRESS before a redelivery
// can take it over; zero keeps claims until the TTL.
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow, leaseWindow time.Duration) *Store {
	return &Store{
		client:      client,
		tableName:   tableName,
		ttlWindow:   ttlWindow,
		leaseWindow: leaseWindow,
		nowFunc:     time.Now,
	}
}

// ErrConditionFailed indicates a conditional write failed (e.g., attribute_not_exists)
var ErrConditionFailed = errors.New("conditional check failed")

// CreateIfNotExists creates an idempotency record with status IN_PROGRESS if the key does not exist.
// Returns (created=true, nil) if successfully created.
// Returns (created=false, nil) if the record already exists (caller should Get to inspect).
// Returns (created=false, err) on other errors.
func (s *Store) CreateIfNotExists(ctx context.Context, key, orderNumber string) (bool, error) {
	now := s.nowFunc()
	rec := IdempotencyRecord{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		OrderNumber:    orderNumber,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
		LeaseUntil:     s.leaseUntil(now),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
	}

	_, err = s.client.PutItem(ctx, input)
	if err != nil {
		if isConditionFailure(err) {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}

	return true, nil
}

// Reclaim moves a FAILED record back to IN_PROGRESS so a redelivery can try
// again. Returns ErrConditionFailed when the record is not FAILED anymore.
func (s *Store) Reclaim(ctx context.Context, key string) error {
	return s.reclaim(ctx, key, "#s = :expected", map[string]types.AttributeValue{
		":expected": &types.AttributeValueMemberS{Value: StatusFailed},
	})
}

// ReclaimStale takes over an IN_PROGRESS record whose lease has run out,
// typically because the process that claimed it died mid-relay. Returns
// ErrConditionFailed when another delivery got there first.
func (s *Store) ReclaimStale(ctx context.Context, key string) error {
	return s.reclaim(ctx, key, "#s = :expected AND lease_until < :now", map[string]types.AttributeValue{
		":expected": &types.AttributeValueMemberS{Value: StatusInProgress},
		":now":      &types.AttributeValueMemberN{Value: strconv.FormatInt(s.nowFunc().Unix(), 10)},
	})
}

// Stale reports whether rec is an IN_PROGRESS claim past its lease.
func (s *Store) Stale(rec *IdempotencyRecord) bool {
	return rec.Status == StatusInProgress && rec.LeaseUntil != 0 && rec.LeaseUntil < s.nowFunc().Unix()
}

func (s *Store) reclaim(ctx context.Context, key, condition string, values map[string]types.AttributeValue) error {
	now := s.nowFunc()
	values[":inprogress"] = &types.AttributeValueMemberS{Value: StatusInProgress}
	values[":ua"] = &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)}
	values[":lease"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(s.leaseUntil(now), 10)}
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression: awsString("SET #s = :inprogress, updated_at = :ua, lease_until = :lease"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: values,
		ConditionExpression:       awsString(condition),
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionFailure(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("update item (reclaim): %w", err)
	}
	return nil
}

func (s *Store) leaseUntil(now time.Time) int64 {
	if s.leaseWindow <= 0 {
		return 0
	}
	return now.Add(s.leaseWindow).Unix()
}

// Get retrieves an idempotency record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*IdempotencyRecord, error) {
	input := &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
	}
	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec IdempotencyRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// MarkDone sets status to DONE and stores the response that was sent back,
// so a redelivery can be answered identically.
func (s *Store) MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression: awsString("SET #s = :done, response_body = :rb, response_status = :rs, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done": &types.AttributeValueMemberS{Value: StatusDone},
			":rb":   &types.AttributeValueMemberS{Value: responseBody},
			":rs":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", responseStatus)},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	}
	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		return fmt.Errorf("update item (mark done): %w", err)
	}
	return nil
}

// MarkFailed marks the idempotency record as FAILED and optionally stores a note.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression: awsString("SET #s = :failed, note = :n, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":n":      &types.AttributeValueMemberS{Value: note},
			":ua":     &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	}
	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		return fmt.Errorf("update item (mark failed): %w", err)
	}
	return nil
}

func isConditionFailure(err error) bool {
	var sc smithy.APIError
	return errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException"
}

// Helper
func awsString(s string) *string { return &s }
