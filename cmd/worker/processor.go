package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"

	"github.com/bellefleur/bellefleur-backend/internal/aws"
	"github.com/bellefleur/bellefleur-backend/internal/notify"
	"github.com/bellefleur/bellefleur-backend/internal/orders"
)

// Processor consumes notification events and sends the matching emails.
// Sending is best effort: a failed email is logged and counted, never
// retried through the queue, so a flaky mail provider cannot wedge the
// order flow.
type Processor struct {
	orderStore *orders.Store
	notifier   notify.Notifier
	metrics    *aws.Metrics
}

// NewProcessor creates a worker processor with AWS clients injected.
func NewProcessor(clients *aws.AWSClients, ordersTable, paymentRefsTable string, notifier notify.Notifier) *Processor {
	return &Processor{
		orderStore: orders.NewStore(clients.DynamoDB, ordersTable, paymentRefsTable),
		notifier:   notifier,
		metrics:    aws.NewMetrics(clients.CloudWatch),
	}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. If failed too many times, message goes to DLQ.
			log.Printf("worker error: %v", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var ev aws.NotificationEvent
	if err := json.Unmarshal([]byte(rec.Body), &ev); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	log.Printf("[worker] received type=%s order=%s", ev.Type, ev.OrderID)

	o, err := p.orderStore.Get(ctx, ev.OrderID)
	if err != nil {
		return fmt.Errorf("failed to fetch order: %w", err)
	}
	if o == nil {
		// Should never happen — DLQ if it does
		return fmt.Errorf("order not found: %s", ev.OrderID)
	}

	switch ev.Type {
	case aws.EventPaymentConfirmed:
		if !p.notifier.SendOrderConfirmation(ctx, o) {
			p.countEmailFailure(ctx, o.OrderID, "confirmation")
		}
		if !p.notifier.SendNewOrderNotification(ctx, o) {
			p.countEmailFailure(ctx, o.OrderID, "new_order")
		}
	case aws.EventStatusChanged:
		if !p.notifier.SendOrderStatusEmail(ctx, o, ev.NewStatus, ev.Note) {
			p.countEmailFailure(ctx, o.OrderID, "status")
		}
	default:
		log.Printf("[worker] ignoring unknown event type=%s order=%s", ev.Type, ev.OrderID)
	}

	return nil
}

func (p *Processor) countEmailFailure(ctx context.Context, orderID, kind string) {
	log.Printf("[worker] email send failed order=%s kind=%s", orderID, kind)
	if p.metrics == nil {
		return
	}
	if err := p.metrics.Count(ctx, aws.MetricEmailFailures, 1); err != nil {
		log.Printf("[worker] metric emit failed: %v", err)
	}
}
