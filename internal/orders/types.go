package orders

import "time"

// Order status wire tokens. These exact strings are persisted and exposed
// to clients; do not translate them.
const (
	StatusPaid       = "payée"
	StatusInCreation = "en_creation"
	StatusReady      = "prête"
	StatusDelivering = "en_livraison"
	StatusDelivered  = "livrée"
	StatusCancelled  = "annulée"
)

// Payment status tokens.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// OrderItem is a snapshot of a cart line at checkout time. Copies, never
// live references: later catalog edits must not touch placed orders.
type OrderItem struct {
	ProductID   string  `dynamodbav:"product_id" json:"product_id"`
	VariantID   string  `dynamodbav:"variant_id,omitempty" json:"variant_id,omitempty"`
	VariantName string  `dynamodbav:"variant_name,omitempty" json:"variant_name,omitempty"`
	Name        string  `dynamodbav:"name" json:"name"`
	Quantity    int     `dynamodbav:"quantity" json:"quantity"`
	UnitPrice   float64 `dynamodbav:"unit_price" json:"unit_price"`
	Image       string  `dynamodbav:"image,omitempty" json:"image,omitempty"`
}

// TimelineEntry is one element of the append-only status log.
type TimelineEntry struct {
	Status string    `dynamodbav:"status" json:"status"`
	Date   time.Time `dynamodbav:"date" json:"date"`
	Note   string    `dynamodbav:"note,omitempty" json:"note,omitempty"`
}

// Customer holds the buyer contact block captured at checkout.
type Customer struct {
	FirstName string `dynamodbav:"first_name" json:"first_name"`
	LastName  string `dynamodbav:"last_name" json:"last_name"`
	Email     string `dynamodbav:"email" json:"email"`
	Phone     string `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
}

// Delivery holds the delivery block captured at checkout.
type Delivery struct {
	Address    string `dynamodbav:"address" json:"address"`
	City       string `dynamodbav:"city" json:"city"`
	PostalCode string `dynamodbav:"postal_code" json:"postal_code"`
	Date       string `dynamodbav:"date,omitempty" json:"date,omitempty"`
	Message    string `dynamodbav:"message,omitempty" json:"message,omitempty"`
}

// Order is the item stored in the orders table.
type Order struct {
	OrderID     string `dynamodbav:"order_id" json:"order_id"` // PK
	OrderNumber string `dynamodbav:"order_number" json:"order_number"`
	UserID      string `dynamodbav:"user_id,omitempty" json:"user_id,omitempty"`
	// SessionID is the guest session token that placed the order, kept so
	// the guest cart can be cleared after payment.
	SessionID string `dynamodbav:"session_id,omitempty" json:"-"`

	Customer Customer    `dynamodbav:"customer" json:"customer"`
	Delivery Delivery    `dynamodbav:"delivery" json:"delivery"`
	Items    []OrderItem `dynamodbav:"items" json:"items"`

	TotalAmount   float64 `dynamodbav:"total_amount" json:"total_amount"`
	Status        string  `dynamodbav:"status" json:"status"`
	PaymentStatus string  `dynamodbav:"payment_status" json:"payment_status"`

	// External payment reference; uniquely identifies at most one order.
	StripePaymentIntentID string `dynamodbav:"stripe_payment_intent_id,omitempty" json:"stripe_payment_intent_id,omitempty"`

	Timeline []TimelineEntry `dynamodbav:"timeline" json:"timeline"`

	// Lifecycle timestamps, set exactly once on first entry to the
	// corresponding status. Back-transitions preserve the first value.
	ConfirmedAt *time.Time `dynamodbav:"confirmed_at,omitempty" json:"confirmed_at,omitempty"`
	ReadyAt     *time.Time `dynamodbav:"ready_at,omitempty" json:"ready_at,omitempty"`
	DeliveredAt *time.Time `dynamodbav:"delivered_at,omitempty" json:"delivered_at,omitempty"`
	CancelledAt *time.Time `dynamodbav:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`

	CreatedAt time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at" json:"updated_at"`
}
