package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bellefleur/bellefleur-backend/internal/aws"
	"github.com/bellefleur/bellefleur-backend/internal/cart"
	"github.com/bellefleur/bellefleur-backend/internal/orders"
)

// Coordinator failure sentinels.
var (
	ErrOrderNotFound          = errors.New("payments: no order for payment reference")
	ErrPaymentIntentMismatch  = errors.New("payments: order does not belong to this payment reference")
	ErrIncompleteOrderPayload = errors.New("payments: fallback order payload incomplete")
)

// Outcome classifies a confirmation attempt.
type Outcome string

const (
	// OutcomeConfirmed means this call won the pending->paid flip.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeAlreadyConfirmed means a prior delivery already paid the
	// order; nothing was sent or cleared.
	OutcomeAlreadyConfirmed Outcome = "already_confirmed"
	OutcomeRequiresAction   Outcome = "requires_action"
	OutcomeProcessing       Outcome = "processing"
	OutcomeCanceled         Outcome = "canceled"
	OutcomeFailed           Outcome = "failed"
)

// Confirmation is the result handed back to the transport layer.
type Confirmation struct {
	Order   *orders.Order
	Outcome Outcome
}

// FallbackOrder is the full order payload the client supplies when it
// reaches the confirmation page before the webhook landed.
type FallbackOrder struct {
	OrderID     string
	UserID      string
	SessionID   string
	Customer    orders.Customer
	Delivery    orders.Delivery
	Items       []orders.OrderItem
	TotalAmount float64
}

// Coordinator reconciles the gateway webhook and the client fallback into
// one idempotent "mark paid + notify once" operation. The payment
// reference's uniqueness in the store is the only concurrency primitive:
// whichever entry point flips or creates first wins, the loser re-reads
// and short-circuits.
type Coordinator struct {
	orders    *orders.Store
	carts     *cart.Store
	gateway   Gateway
	publisher *aws.Publisher
	metrics   *aws.Metrics
	nowFunc   func() time.Time
}

// NewCoordinator wires the coordinator. metrics may be nil in tests.
func NewCoordinator(ordersStore *orders.Store, carts *cart.Store, gateway Gateway, publisher *aws.Publisher, metrics *aws.Metrics) *Coordinator {
	return &Coordinator{
		orders:    ordersStore,
		carts:     carts,
		gateway:   gateway,
		publisher: publisher,
		metrics:   metrics,
		nowFunc:   time.Now,
	}
}

// HandlePaymentSucceeded processes a gateway webhook for a successful
// payment. Returns ErrOrderNotFound when no order owns the reference yet;
// the gateway retries and the client fallback fills the gap meanwhile.
func (c *Coordinator) HandlePaymentSucceeded(ctx context.Context, paymentIntentID string) (*Confirmation, error) {
	o, err := c.orders.GetByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("%s: %w", paymentIntentID, ErrOrderNotFound)
	}
	return c.confirm(ctx, o)
}

// ConfirmFallback is the synchronous client path. It checks the payment
// status with the gateway first, then either short-circuits on an
// existing order or synthesizes one with payment already captured.
func (c *Coordinator) ConfirmFallback(ctx context.Context, paymentIntentID string, payload FallbackOrder) (*Confirmation, error) {
	intent, err := c.gateway.RetrievePaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("retrieve payment intent: %w", err)
	}

	if outcome, done := nonSuccessOutcome(intent.Status); done {
		c.recordNonSuccess(ctx, paymentIntentID, intent.Status, outcome)
		return &Confirmation{Outcome: outcome}, nil
	}

	if metaOrder := intent.Metadata["order_id"]; metaOrder != "" && metaOrder != "guest" &&
		payload.OrderID != "" && payload.OrderID != metaOrder {
		return nil, fmt.Errorf("payload order %s, intent order %s: %w",
			payload.OrderID, metaOrder, ErrPaymentIntentMismatch)
	}

	existing, err := c.orders.GetByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// fallback raced a real order: not an error, converge on it
		return c.confirm(ctx, existing)
	}

	if err := validateFallback(payload); err != nil {
		return nil, err
	}

	o, err := c.synthesizeOrder(ctx, paymentIntentID, payload)
	if err != nil {
		if errors.Is(err, orders.ErrPaymentRefExists) {
			// lost the creation race; the winner's order is authoritative
			winner, gerr := c.orders.GetByPaymentIntent(ctx, paymentIntentID)
			if gerr != nil {
				return nil, gerr
			}
			if winner == nil {
				return nil, fmt.Errorf("payment ref claimed but order unreadable: %w", err)
			}
			return c.confirm(ctx, winner)
		}
		return nil, err
	}
	c.afterPaid(ctx, o)
	return &Confirmation{Order: o, Outcome: OutcomeConfirmed}, nil
}

// confirm flips an existing order to paid exactly once. The duplicate
// path (webhook redelivery, client retry, race loser) lands here and must
// send nothing.
func (c *Coordinator) confirm(ctx context.Context, o *orders.Order) (*Confirmation, error) {
	if o.PaymentStatus == orders.PaymentPaid {
		c.count(ctx, aws.MetricDuplicateConfirmations)
		return &Confirmation{Order: o, Outcome: OutcomeAlreadyConfirmed}, nil
	}

	now := c.nowFunc()
	entry := orders.TimelineEntry{
		Status: orders.StatusPaid,
		Date:   now,
		Note:   "Paiement confirmé",
	}
	err := c.orders.MarkPaid(ctx, o.OrderID, entry)
	if errors.Is(err, orders.ErrAlreadyPaid) {
		// a concurrent writer flipped between our read and write
		c.count(ctx, aws.MetricDuplicateConfirmations)
		fresh, gerr := c.orders.Get(ctx, o.OrderID)
		if gerr != nil {
			return nil, gerr
		}
		return &Confirmation{Order: fresh, Outcome: OutcomeAlreadyConfirmed}, nil
	}
	if err != nil {
		return nil, err
	}

	o.PaymentStatus = orders.PaymentPaid
	o.Timeline = append(o.Timeline, entry)
	if o.ConfirmedAt == nil {
		o.ConfirmedAt = &now
	}

	c.afterPaid(ctx, o)
	return &Confirmation{Order: o, Outcome: OutcomeConfirmed}, nil
}

// afterPaid runs the side effects of a won confirmation: one notification
// event and a best-effort cart clear. Neither failure rolls anything back;
// the committed paid state is authoritative.
func (c *Coordinator) afterPaid(ctx context.Context, o *orders.Order) {
	if c.publisher != nil {
		ev := aws.NotificationEvent{Type: aws.EventPaymentConfirmed, OrderID: o.OrderID}
		if err := c.publisher.PublishNotification(ctx, ev, map[string]string{"order_id": o.OrderID}); err != nil {
			log.Printf("[payments] notification publish failed order=%s err=%v", o.OrderID, err)
		}
	}
	c.clearCart(ctx, o)
	c.count(ctx, aws.MetricPaymentsConfirmed)
}

func (c *Coordinator) clearCart(ctx context.Context, o *orders.Order) {
	if c.carts == nil {
		return
	}
	var owner cart.Owner
	switch {
	case o.UserID != "":
		owner = cart.Owner{UserID: o.UserID}
	case o.SessionID != "":
		owner = cart.Owner{SessionID: o.SessionID}
	default:
		return
	}
	if err := c.carts.Delete(ctx, owner); err != nil {
		log.Printf("[payments] cart clear failed order=%s err=%v", o.OrderID, err)
	}
}

// recordNonSuccess annotates an existing order's timeline for canceled or
// failed payments without touching its status.
func (c *Coordinator) recordNonSuccess(ctx context.Context, paymentIntentID, gatewayStatus string, outcome Outcome) {
	if outcome != OutcomeCanceled && outcome != OutcomeFailed {
		return
	}
	o, err := c.orders.GetByPaymentIntent(ctx, paymentIntentID)
	if err != nil || o == nil {
		return
	}
	entry := orders.TimelineEntry{
		Status: o.Status,
		Date:   c.nowFunc(),
		Note:   fmt.Sprintf("Échec du paiement (%s)", gatewayStatus),
	}
	if err := c.orders.AppendTimeline(ctx, o.OrderID, entry); err != nil {
		log.Printf("[payments] failed-payment annotation failed order=%s err=%v", o.OrderID, err)
	}
	if err := c.orders.SetPaymentStatus(ctx, o.OrderID, orders.PaymentFailed); err != nil {
		log.Printf("[payments] payment status update failed order=%s err=%v", o.OrderID, err)
	}
}

func (c *Coordinator) synthesizeOrder(ctx context.Context, paymentIntentID string, payload FallbackOrder) (*orders.Order, error) {
	now := c.nowFunc()
	number, err := orders.GenerateOrderNumber(ctx, c.orders.OrderNumberExists, now)
	if err != nil {
		return nil, err
	}

	items := make([]orders.OrderItem, len(payload.Items))
	copy(items, payload.Items)

	o := orders.Order{
		OrderID:               uuid.NewString(),
		OrderNumber:           number,
		UserID:                payload.UserID,
		SessionID:             payload.SessionID,
		Customer:              payload.Customer,
		Delivery:              payload.Delivery,
		Items:                 items,
		TotalAmount:           payload.TotalAmount,
		Status:                orders.StatusPaid,
		PaymentStatus:         orders.PaymentPaid, // gateway already confirmed out-of-band
		StripePaymentIntentID: paymentIntentID,
		Timeline: []orders.TimelineEntry{
			{Status: orders.StatusPaid, Date: now, Note: "Paiement confirmé"},
		},
		ConfirmedAt: &now,
		CreatedAt:   now,
	}
	if err := c.orders.Create(ctx, o); err != nil {
		return nil, err
	}
	return &o, nil
}

func validateFallback(p FallbackOrder) error {
	switch {
	case p.Customer.Email == "" || p.Customer.FirstName == "":
		return fmt.Errorf("customer block: %w", ErrIncompleteOrderPayload)
	case p.Delivery.Address == "" || p.Delivery.City == "":
		return fmt.Errorf("delivery block: %w", ErrIncompleteOrderPayload)
	case len(p.Items) == 0:
		return fmt.Errorf("items: %w", ErrIncompleteOrderPayload)
	case p.TotalAmount <= 0:
		return fmt.Errorf("total amount: %w", ErrIncompleteOrderPayload)
	}
	return nil
}

// nonSuccessOutcome maps gateway statuses other than succeeded.
func nonSuccessOutcome(status string) (Outcome, bool) {
	switch status {
	case IntentSucceeded:
		return "", false
	case IntentRequiresAction:
		return OutcomeRequiresAction, true
	case IntentProcessing:
		return OutcomeProcessing, true
	case IntentCanceled:
		return OutcomeCanceled, true
	default:
		return OutcomeFailed, true
	}
}

func (c *Coordinator) count(ctx context.Context, metric string) {
	if c.metrics == nil {
		return
	}
	if err := c.metrics.Count(ctx, metric, 1); err != nil {
		log.Printf("[payments] metric %s failed: %v", metric, err)
	}
}
