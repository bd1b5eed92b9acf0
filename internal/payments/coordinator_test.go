package payments

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dyntypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	sqssvc "github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/bellefleur/bellefleur-backend/internal/aws"
	"github.com/bellefleur/bellefleur-backend/internal/orders"
)

const (
	testOrdersTable = "orders-test"
	testRefsTable   = "payment-refs-test"
)

// mockDynamo mirrors the DynamoDB behaviors the orders store relies on:
// conditional transact-puts on the payment reference and conditional
// pending->paid updates.
type mockDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]dyntypes.AttributeValue

	// beforeTransact, when set, runs once before the next transact-put
	// checks its conditions. Tests use it to script a writer sneaking in
	// between a ref lookup and the claim attempt.
	beforeTransact func()
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{tables: map[string]map[string]map[string]dyntypes.AttributeValue{}}
}

func (m *mockDynamo) ensureTable(tbl string) {
	if _, ok := m.tables[tbl]; !ok {
		m.tables[tbl] = map[string]map[string]dyntypes.AttributeValue{}
	}
}

// pkOf picks the key per table: ref claims carry both order_id and
// stripe_payment_intent_id, so the table decides which one keys the item.
func pkOf(table string, attrs map[string]dyntypes.AttributeValue) (string, error) {
	keyAttr := "order_id"
	if table == testRefsTable {
		keyAttr = "stripe_payment_intent_id"
	}
	if v, ok := attrs[keyAttr]; ok {
		return v.(*dyntypes.AttributeValueMemberS).Value, nil
	}
	return "", errors.New("no primary key attribute")
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureTable(*params.TableName)
	pk, err := pkOf(*params.TableName, params.Item)
	if err != nil {
		return nil, err
	}
	m.tables[*params.TableName][pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureTable(*params.TableName)
	pk, err := pkOf(*params.TableName, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.tables[*params.TableName][pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureTable(*params.TableName)
	pk, err := pkOf(*params.TableName, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.tables[*params.TableName][pk]
	if !ok {
		return nil, errors.New("item not found")
	}
	vals := params.ExpressionAttributeValues
	if params.ConditionExpression != nil && *params.ConditionExpression == "payment_status = :pending" {
		expected := vals[":pending"].(*dyntypes.AttributeValueMemberS).Value
		current, _ := item["payment_status"].(*dyntypes.AttributeValueMemberS)
		if current == nil || current.Value != expected {
			return nil, &dyntypes.ConditionalCheckFailedException{}
		}
	}
	expr := *params.UpdateExpression
	if strings.Contains(expr, "payment_status = :paid") {
		item["payment_status"] = vals[":paid"]
	}
	if strings.Contains(expr, "payment_status = :ps") {
		item["payment_status"] = vals[":ps"]
	}
	if strings.Contains(expr, "timeline = list_append") {
		entry := vals[":entry"].(*dyntypes.AttributeValueMemberL)
		var existing []dyntypes.AttributeValue
		if l, ok := item["timeline"].(*dyntypes.AttributeValueMemberL); ok {
			existing = l.Value
		}
		item["timeline"] = &dyntypes.AttributeValueMemberL{Value: append(existing, entry.Value...)}
	}
	if strings.Contains(expr, "confirmed_at = if_not_exists") {
		if _, set := item["confirmed_at"]; !set {
			item["confirmed_at"] = vals[":ts"]
		}
	}
	m.tables[*params.TableName][pk] = item
	return &dyn.UpdateItemOutput{}, nil
}

func (m *mockDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureTable(*params.TableName)
	want := params.ExpressionAttributeValues[":n"].(*dyntypes.AttributeValueMemberS).Value
	out := &dyn.QueryOutput{}
	for _, item := range m.tables[*params.TableName] {
		if v, ok := item["order_number"].(*dyntypes.AttributeValueMemberS); ok && v.Value == want {
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	if hook := m.beforeTransact; hook != nil {
		m.beforeTransact = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range params.TransactItems {
		p := it.Put
		if p == nil {
			continue
		}
		pk, err := pkOf(*p.TableName, p.Item)
		if err != nil {
			return nil, err
		}
		if p.ConditionExpression != nil && strings.HasPrefix(*p.ConditionExpression, "attribute_not_exists") {
			m.ensureTable(*p.TableName)
			if _, exists := m.tables[*p.TableName][pk]; exists {
				return nil, &dyntypes.TransactionCanceledException{}
			}
		}
	}
	for _, it := range params.TransactItems {
		p := it.Put
		if p == nil {
			continue
		}
		pk, _ := pkOf(*p.TableName, p.Item)
		m.ensureTable(*p.TableName)
		m.tables[*p.TableName][pk] = p.Item
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

// mockSQS counts published notification events.
type mockSQS struct {
	mu    sync.Mutex
	sends int
}

func (m *mockSQS) SendMessage(ctx context.Context, params *sqssvc.SendMessageInput, optFns ...func(*sqssvc.Options)) (*sqssvc.SendMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends++
	return &sqssvc.SendMessageOutput{}, nil
}

// mockGateway serves intent statuses from a fixed map.
type mockGateway struct {
	intents map[string]*PaymentIntent
}

func (g *mockGateway) RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	if pi, ok := g.intents[id]; ok {
		return pi, nil
	}
	return nil, errors.New("no such intent")
}

func newTestCoordinator(gateway Gateway) (*Coordinator, *orders.Store, *mockSQS) {
	dynamo := newMockDynamo()
	store := orders.NewStore(dynamo, testOrdersTable, testRefsTable)
	sqs := &mockSQS{}
	publisher := aws.NewPublisher(sqs, "https://sqs.test/notifications")
	co := NewCoordinator(store, nil, gateway, publisher, nil)
	return co, store, sqs
}

func pendingOrder(ref string) orders.Order {
	return orders.Order{
		OrderID:     "o1",
		OrderNumber: "BF-20260314-0042",
		Customer:    orders.Customer{FirstName: "Claire", LastName: "Moreau", Email: "claire@example.fr"},
		Delivery:    orders.Delivery{Address: "12 rue des Lilas", City: "Lyon", PostalCode: "69003"},
		Items: []orders.OrderItem{
			{ProductID: "p-roses", Name: "Bouquet de roses", Quantity: 2, UnitPrice: 35},
		},
		TotalAmount:           70,
		Status:                orders.StatusPaid,
		PaymentStatus:         orders.PaymentPending,
		StripePaymentIntentID: ref,
		Timeline:              []orders.TimelineEntry{},
	}
}

func fallbackPayload() FallbackOrder {
	return FallbackOrder{
		SessionID: "sess-42",
		Customer:  orders.Customer{FirstName: "Claire", LastName: "Moreau", Email: "claire@example.fr"},
		Delivery:  orders.Delivery{Address: "12 rue des Lilas", City: "Lyon", PostalCode: "69003"},
		Items: []orders.OrderItem{
			{ProductID: "p-roses", Name: "Bouquet de roses", Quantity: 2, UnitPrice: 35},
		},
		TotalAmount: 70,
	}
}

func TestWebhook_ConfirmsOnce(t *testing.T) {
	co, store, sqs := newTestCoordinator(&mockGateway{})
	ctx := context.Background()

	if err := store.Create(ctx, pendingOrder("pi_123")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := co.HandlePaymentSucceeded(ctx, "pi_123")
	if err != nil {
		t.Fatalf("first webhook: %v", err)
	}
	if res.Outcome != OutcomeConfirmed {
		t.Fatalf("outcome=%s", res.Outcome)
	}
	if res.Order.PaymentStatus != orders.PaymentPaid {
		t.Fatalf("payment status=%s", res.Order.PaymentStatus)
	}

	// duplicate delivery skips notifications entirely
	res, err = co.HandlePaymentSucceeded(ctx, "pi_123")
	if err != nil {
		t.Fatalf("duplicate webhook: %v", err)
	}
	if res.Outcome != OutcomeAlreadyConfirmed {
		t.Fatalf("duplicate outcome=%s", res.Outcome)
	}

	if sqs.sends != 1 {
		t.Fatalf("expected exactly one notification event, got %d", sqs.sends)
	}

	got, _ := store.Get(ctx, "o1")
	if len(got.Timeline) != 1 {
		t.Fatalf("timeline entries=%d", len(got.Timeline))
	}
}

func TestWebhook_OrderNotFound(t *testing.T) {
	co, _, _ := newTestCoordinator(&mockGateway{})

	_, err := co.HandlePaymentSucceeded(context.Background(), "pi_unknown")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestFallback_SynthesizesPaidOrder(t *testing.T) {
	gateway := &mockGateway{intents: map[string]*PaymentIntent{
		"pi_123": {ID: "pi_123", Status: IntentSucceeded, Amount: 70},
	}}
	co, store, sqs := newTestCoordinator(gateway)
	ctx := context.Background()

	res, err := co.ConfirmFallback(ctx, "pi_123", fallbackPayload())
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if res.Outcome != OutcomeConfirmed {
		t.Fatalf("outcome=%s", res.Outcome)
	}
	o := res.Order
	if o.PaymentStatus != orders.PaymentPaid || o.Status != orders.StatusPaid {
		t.Fatalf("order state: %+v", o)
	}
	if o.ConfirmedAt == nil {
		t.Fatalf("confirmed_at missing")
	}
	if !strings.HasPrefix(o.OrderNumber, "BF-") {
		t.Fatalf("order number: %s", o.OrderNumber)
	}
	if sqs.sends != 1 {
		t.Fatalf("notification events=%d", sqs.sends)
	}

	// re-running the fallback (client retry) finds the existing order
	res, err = co.ConfirmFallback(ctx, "pi_123", fallbackPayload())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Outcome != OutcomeAlreadyConfirmed {
		t.Fatalf("retry outcome=%s", res.Outcome)
	}
	if res.Order.OrderID != o.OrderID {
		t.Fatalf("retry returned a different order")
	}
	if sqs.sends != 1 {
		t.Fatalf("retry re-sent notifications: %d", sqs.sends)
	}

	// exactly one order exists for the reference
	byRef, err := store.GetByPaymentIntent(ctx, "pi_123")
	if err != nil || byRef == nil || byRef.OrderID != o.OrderID {
		t.Fatalf("by ref: %+v err=%v", byRef, err)
	}
}

func TestFallback_RaceWithWebhookConverges(t *testing.T) {
	gateway := &mockGateway{intents: map[string]*PaymentIntent{
		"pi_123": {ID: "pi_123", Status: IntentSucceeded, Amount: 70},
	}}
	co, store, sqs := newTestCoordinator(gateway)
	ctx := context.Background()

	// webhook side pre-created and paid the order
	if err := store.Create(ctx, pendingOrder("pi_123")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := co.HandlePaymentSucceeded(ctx, "pi_123"); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	// the client fallback arrives late with a full payload
	res, err := co.ConfirmFallback(ctx, "pi_123", fallbackPayload())
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if res.Outcome != OutcomeAlreadyConfirmed {
		t.Fatalf("outcome=%s", res.Outcome)
	}
	if res.Order.OrderID != "o1" {
		t.Fatalf("fallback created a second order: %s", res.Order.OrderID)
	}
	if sqs.sends != 1 {
		t.Fatalf("notification events=%d", sqs.sends)
	}
}

func TestFallback_LosesClaimRaceConvergesOnWinner(t *testing.T) {
	gateway := &mockGateway{intents: map[string]*PaymentIntent{
		"pi_123": {ID: "pi_123", Status: IntentSucceeded, Amount: 70},
	}}
	dynamo := newMockDynamo()
	store := orders.NewStore(dynamo, testOrdersTable, testRefsTable)
	sqs := &mockSQS{}
	co := NewCoordinator(store, nil, gateway, aws.NewPublisher(sqs, "https://sqs.test/notifications"), nil)
	ctx := context.Background()

	// a concurrent writer claims the payment ref after the fallback's
	// lookup misses but before its transact-put lands
	dynamo.beforeTransact = func() {
		winner := pendingOrder("pi_123")
		winner.OrderID = "o-winner"
		if err := store.Create(ctx, winner); err != nil {
			t.Fatalf("winner create: %v", err)
		}
	}

	res, err := co.ConfirmFallback(ctx, "pi_123", fallbackPayload())
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if res.Outcome != OutcomeConfirmed {
		t.Fatalf("outcome=%s", res.Outcome)
	}
	if res.Order.OrderID != "o-winner" {
		t.Fatalf("loser minted its own order: %s", res.Order.OrderID)
	}
	if res.Order.PaymentStatus != orders.PaymentPaid {
		t.Fatalf("payment status=%s", res.Order.PaymentStatus)
	}
	if sqs.sends != 1 {
		t.Fatalf("notification events=%d", sqs.sends)
	}

	got, err := store.GetByPaymentIntent(ctx, "pi_123")
	if err != nil {
		t.Fatalf("re-read: %v", err)
	}
	if got.OrderID != "o-winner" || len(got.Timeline) != 1 {
		t.Fatalf("winner order: id=%s timeline=%d", got.OrderID, len(got.Timeline))
	}
}

func TestFallback_GatewayNonSuccessStatuses(t *testing.T) {
	gateway := &mockGateway{intents: map[string]*PaymentIntent{
		"pi_action":   {ID: "pi_action", Status: IntentRequiresAction},
		"pi_pending":  {ID: "pi_pending", Status: IntentProcessing},
		"pi_canceled": {ID: "pi_canceled", Status: IntentCanceled},
		"pi_weird":    {ID: "pi_weird", Status: "requires_payment_method"},
	}}
	co, store, sqs := newTestCoordinator(gateway)
	ctx := context.Background()

	cases := map[string]Outcome{
		"pi_action":   OutcomeRequiresAction,
		"pi_pending":  OutcomeProcessing,
		"pi_canceled": OutcomeCanceled,
		"pi_weird":    OutcomeFailed,
	}
	for ref, want := range cases {
		res, err := co.ConfirmFallback(ctx, ref, fallbackPayload())
		if err != nil {
			t.Fatalf("%s: %v", ref, err)
		}
		if res.Outcome != want {
			t.Fatalf("%s: outcome=%s want=%s", ref, res.Outcome, want)
		}
	}
	if sqs.sends != 0 {
		t.Fatalf("non-success outcomes must not notify: %d", sqs.sends)
	}

	// a canceled payment against an existing order annotates its timeline
	o := pendingOrder("pi_canceled")
	o.OrderID = "o-cancel"
	if err := store.Create(ctx, o); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := co.ConfirmFallback(ctx, "pi_canceled", fallbackPayload()); err != nil {
		t.Fatalf("canceled: %v", err)
	}
	got, _ := store.Get(ctx, "o-cancel")
	if got.PaymentStatus != orders.PaymentFailed {
		t.Fatalf("payment status=%s", got.PaymentStatus)
	}
	if len(got.Timeline) != 1 || got.Timeline[0].Status != orders.StatusPaid {
		t.Fatalf("timeline: %+v", got.Timeline)
	}
	if got.Status != orders.StatusPaid {
		t.Fatalf("order status must not change on failure: %s", got.Status)
	}
}

func TestFallback_IncompletePayload(t *testing.T) {
	gateway := &mockGateway{intents: map[string]*PaymentIntent{
		"pi_123": {ID: "pi_123", Status: IntentSucceeded},
	}}
	co, _, _ := newTestCoordinator(gateway)

	p := fallbackPayload()
	p.Items = nil
	if _, err := co.ConfirmFallback(context.Background(), "pi_123", p); !errors.Is(err, ErrIncompleteOrderPayload) {
		t.Fatalf("expected ErrIncompleteOrderPayload, got %v", err)
	}
}

func TestFallback_IntentMismatch(t *testing.T) {
	gateway := &mockGateway{intents: map[string]*PaymentIntent{
		"pi_123": {ID: "pi_123", Status: IntentSucceeded, Metadata: map[string]string{"order_id": "o-real"}},
	}}
	co, _, _ := newTestCoordinator(gateway)

	p := fallbackPayload()
	p.OrderID = "o-somebody-else"
	if _, err := co.ConfirmFallback(context.Background(), "pi_123", p); !errors.Is(err, ErrPaymentIntentMismatch) {
		t.Fatalf("expected ErrPaymentIntentMismatch, got %v", err)
	}
}

func TestConfirm_TimestampStable(t *testing.T) {
	co, store, _ := newTestCoordinator(&mockGateway{})
	fixed := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	co.nowFunc = func() time.Time { return fixed }
	ctx := context.Background()

	if err := store.Create(ctx, pendingOrder("pi_123")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	res, err := co.HandlePaymentSucceeded(ctx, "pi_123")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.Order.ConfirmedAt == nil || !res.Order.ConfirmedAt.Equal(fixed) {
		t.Fatalf("confirmed_at=%v", res.Order.ConfirmedAt)
	}
}
