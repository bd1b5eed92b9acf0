package notify

import (
	"context"

	"github.com/bellefleur/bellefleur-backend/internal/orders"
)

// Notifier sends customer and back-office emails for order events. Each
// method reports success with a boolean: notification failures must never
// fail the operation that triggered them, so no error propagates.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, o *orders.Order) bool
	SendNewOrderNotification(ctx context.Context, o *orders.Order) bool
	SendOrderStatusEmail(ctx context.Context, o *orders.Order, newStatus, note string) bool
}
