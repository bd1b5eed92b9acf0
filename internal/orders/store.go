package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/bellefleur/bellefleur-backend/internal/aws"
)

// isConditionalFailure detects a lost conditional write. The SDK surfaces
// these either as the typed exception or as a generic API error carrying
// the code, depending on the operation.
func isConditionalFailure(err error) bool {
	var cc *types.ConditionalCheckFailedException
	if errors.As(err, &cc) {
		return true
	}
	var sc smithy.APIError
	return errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException"
}

// Store failure sentinels.
var (
	// ErrStatusMismatch means the persisted status no longer matches the
	// one the transition was validated against.
	ErrStatusMismatch = errors.New("orders: status changed since read")
	// ErrAlreadyPaid means the conditional pending->paid flip lost.
	ErrAlreadyPaid = errors.New("orders: payment already confirmed")
	// ErrPaymentRefExists means an order already owns this payment reference.
	ErrPaymentRefExists = errors.New("orders: payment reference already claimed")
)

const orderNumberIndex = "order_number-index"

// Store encapsulates operations on the orders table and the payment
// reference claim table. The claim table's primary key is the external
// payment reference; a conditional put on it is the only mutual
// exclusion this package needs.
type Store struct {
	client           aws.DynamoDBAPI
	tableName        string
	paymentRefsTable string
	nowFunc          func() time.Time
}

// NewStore creates an orders Store.
func NewStore(client aws.DynamoDBAPI, tableName, paymentRefsTable string) *Store {
	return &Store{
		client:           client,
		tableName:        tableName,
		paymentRefsTable: paymentRefsTable,
		nowFunc:          time.Now,
	}
}

// paymentRefClaim is the shape persisted in the payment refs table.
type paymentRefClaim struct {
	PaymentIntentID string    `dynamodbav:"stripe_payment_intent_id"` // PK
	OrderID         string    `dynamodbav:"order_id"`
	CreatedAt       time.Time `dynamodbav:"created_at"`
}

// Create atomically creates:
//   - a payment reference claim in the refs table (ConditionExpression
//     attribute_not_exists(stripe_payment_intent_id))
//   - the order record in the orders table
//
// Whichever writer loses the claim race gets ErrPaymentRefExists and must
// re-read by payment reference.
func (s *Store) Create(ctx context.Context, order Order) error {
	now := s.nowFunc()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	claim := paymentRefClaim{
		PaymentIntentID: order.StripePaymentIntentID,
		OrderID:         order.OrderID,
		CreatedAt:       now,
	}
	claimMap, err := attributevalue.MarshalMap(claim)
	if err != nil {
		return fmt.Errorf("marshal payment ref claim: %w", err)
	}
	orderMap, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	transactItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           &s.paymentRefsTable,
				Item:                claimMap,
				ConditionExpression: awsString("attribute_not_exists(stripe_payment_intent_id)"),
			},
		},
		{
			Put: &types.Put{
				TableName:           &s.tableName,
				Item:                orderMap,
				ConditionExpression: awsString("attribute_not_exists(order_id)"),
			},
		},
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: transactItems,
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return ErrPaymentRefExists
		}
		var sc smithy.APIError
		if errors.As(err, &sc) && sc.ErrorCode() == "TransactionCanceledException" {
			return ErrPaymentRefExists
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	key := map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
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
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// GetByPaymentIntent resolves an order through the payment reference
// claim. Returns (nil, nil) when no order owns the reference yet.
func (s *Store) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.paymentRefsTable,
		Key: map[string]types.AttributeValue{
			"stripe_payment_intent_id": &types.AttributeValueMemberS{Value: paymentIntentID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get payment ref: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var claim paymentRefClaim
	if err := attributevalue.UnmarshalMap(out.Item, &claim); err != nil {
		return nil, fmt.Errorf("unmarshal payment ref: %w", err)
	}
	return s.Get(ctx, claim.OrderID)
}

// OrderNumberExists queries the order_number GSI.
func (s *Store) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(orderNumberIndex),
		KeyConditionExpression: awsString("order_number = :n"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n": &types.AttributeValueMemberS{Value: number},
		},
		Limit: awsInt32(1),
	})
	if err != nil {
		return false, fmt.Errorf("query order number: %w", err)
	}
	return len(out.Items) > 0, nil
}

// MarkPaid conditionally flips payment_status from pending to paid,
// appending the confirmation timeline entry and stamping confirmed_at in
// the same update. Returns ErrAlreadyPaid when the flip already happened;
// the caller takes the duplicate short-circuit and sends nothing.
func (s *Store) MarkPaid(ctx context.Context, orderID string, entry TimelineEntry) error {
	now := s.nowFunc()
	entryList, err := marshalTimelineEntry(entry)
	if err != nil {
		return err
	}

	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression: awsString("SET payment_status = :paid, updated_at = :ua, " +
			"confirmed_at = if_not_exists(confirmed_at, :ts), " +
			"timeline = list_append(if_not_exists(timeline, :empty), :entry)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":paid":    &types.AttributeValueMemberS{Value: PaymentPaid},
			":pending": &types.AttributeValueMemberS{Value: PaymentPending},
			":ua":      &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":ts":      &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":empty":   &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":entry":   entryList,
		},
		ConditionExpression: awsString("payment_status = :pending"),
	}

	_, err = s.client.UpdateItem(ctx, input)
	if err != nil {
		if isConditionalFailure(err) {
			return ErrAlreadyPaid
		}
		return fmt.Errorf("update item (mark paid): %w", err)
	}
	return nil
}

// ApplyStatus persists a validated transition with a condition on the
// status the caller read, so a concurrent admin action surfaces as
// ErrStatusMismatch instead of silently overwriting. The lifecycle
// timestamp for the entered status is set with if_not_exists.
func (s *Store) ApplyStatus(ctx context.Context, orderID, expectedStatus, newStatus string, entry TimelineEntry) error {
	now := s.nowFunc()
	entryList, err := marshalTimelineEntry(entry)
	if err != nil {
		return err
	}

	updateExpr := "SET #s = :new, updated_at = :ua, " +
		"timeline = list_append(if_not_exists(timeline, :empty), :entry)"
	values := map[string]types.AttributeValue{
		":new":      &types.AttributeValueMemberS{Value: newStatus},
		":expected": &types.AttributeValueMemberS{Value: expectedStatus},
		":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		":empty":    &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
		":entry":    entryList,
	}
	if attr := lifecycleAttribute(newStatus); attr != "" {
		updateExpr += fmt.Sprintf(", %s = if_not_exists(%s, :ts)", attr, attr)
		values[":ts"] = &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)}
	}

	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:          awsString(updateExpr),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
		ConditionExpression:       awsString("#s = :expected"),
	}

	_, err = s.client.UpdateItem(ctx, input)
	if err != nil {
		if isConditionalFailure(err) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item (apply status): %w", err)
	}
	return nil
}

// AppendTimeline appends an entry without touching the status, used for
// failed-payment annotations.
func (s *Store) AppendTimeline(ctx context.Context, orderID string, entry TimelineEntry) error {
	now := s.nowFunc()
	entryList, err := marshalTimelineEntry(entry)
	if err != nil {
		return err
	}

	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression: awsString("SET updated_at = :ua, " +
			"timeline = list_append(if_not_exists(timeline, :empty), :entry)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ua":    &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":entry": entryList,
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("update item (append timeline): %w", err)
	}
	return nil
}

// SetPaymentStatus records a non-success gateway outcome (failed,
// refunded) without altering the order status.
func (s *Store) SetPaymentStatus(ctx context.Context, orderID, paymentStatus string) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression: awsString("SET payment_status = :ps, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ps": &types.AttributeValueMemberS{Value: paymentStatus},
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("update item (payment status): %w", err)
	}
	return nil
}

func marshalTimelineEntry(entry TimelineEntry) (types.AttributeValue, error) {
	list, err := attributevalue.MarshalList([]TimelineEntry{entry})
	if err != nil {
		return nil, fmt.Errorf("marshal timeline entry: %w", err)
	}
	return &types.AttributeValueMemberL{Value: list}, nil
}

func awsString(s string) *string { return &s }
func awsInt32(i int32) *int32    { return &i }
