package validation

// AddCartItemRequest is the payload for POST /cart/items
type AddCartItemRequest struct {
	ProductID    string   `json:"product_id" validate:"required"`
	Quantity     int      `json:"quantity" validate:"required,min=1,max=50"`
	VariantID    string   `json:"variant_id,omitempty"`
	VariantName  string   `json:"variant_name,omitempty"`
	VariantIndex *int     `json:"variant_index,omitempty" validate:"omitempty,min=0"`
	CustomPrice  *float64 `json:"custom_price,omitempty" validate:"omitempty,gt=0"` // only for custom_range products
}

// UpdateQuantityRequest is the payload for PATCH /cart/items
type UpdateQuantityRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=50"`
}

// RemoveCartItemRequest is the payload for DELETE /cart/items
type RemoveCartItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	VariantID string `json:"variant_id,omitempty"`
}

// OrderItemPayload is a single order line in the fallback confirmation.
type OrderItemPayload struct {
	ProductID   string  `json:"product_id" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	VariantID   string  `json:"variant_id,omitempty"`
	VariantName string  `json:"variant_name,omitempty"`
	Quantity    int     `json:"quantity" validate:"required,min=1"`
	UnitPrice   float64 `json:"unit_price" validate:"required,gt=0"`
}

// CustomerPayload identifies the buyer on the fallback confirmation.
type CustomerPayload struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone,omitempty"`
}

// DeliveryPayload is the delivery address on the fallback confirmation.
type DeliveryPayload struct {
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Date       string `json:"date,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ConfirmPaymentRequest is the payload for POST /payments/confirm. The
// client sends the full order so the backend can create it when the
// gateway webhook has not landed yet.
type ConfirmPaymentRequest struct {
	PaymentIntentID string             `json:"payment_intent_id" validate:"required"`
	OrderID         string             `json:"order_id,omitempty"` // set when the client already knows the order
	Customer        CustomerPayload    `json:"customer" validate:"required"`
	Delivery        DeliveryPayload    `json:"delivery" validate:"required"`
	Items           []OrderItemPayload `json:"items" validate:"required,min=1,dive"`
	TotalAmount     float64            `json:"total_amount" validate:"required,gt=0"` // total amount client claims
}

// UpdateStatusRequest is the payload for PUT /orders/:id/status
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note,omitempty"`
}
