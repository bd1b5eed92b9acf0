package cart

import (
	"errors"
	"time"
)

// MaxQuantity caps a single line item's quantity.
const MaxQuantity = 50

// Cart mutation failures.
var (
	ErrInvalidQuantity = errors.New("cart: quantity must be between 1 and 50")
	ErrQuantityLimit   = errors.New("cart: quantity would exceed the limit of 50")
	ErrItemNotFound    = errors.New("cart: item not found")
	ErrProductNotFound = errors.New("cart: product not found")
	ErrProductInactive = errors.New("cart: product is not available")
	ErrInvalidOwner    = errors.New("cart: exactly one of user id or session token required")
)

// LineItem is one line in a cart. Identity is ProductID alone when the
// product has no variant, else ProductID+VariantID.
type LineItem struct {
	ProductID   string  `json:"product_id"`
	VariantID   string  `json:"variant_id,omitempty"`
	VariantName string  `json:"variant_name,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Image       string  `json:"image,omitempty"`
	Name        string  `json:"name"`
}

// Cart is a single-owner collection of line items. TotalItems and
// TotalAmount are derived and recomputed on every mutation, never stored
// independently.
type Cart struct {
	UserID      string     `json:"user_id,omitempty"`
	SessionID   string     `json:"session_id,omitempty"`
	Items       []LineItem `json:"items"`
	TotalItems  int        `json:"total_items"`
	TotalAmount float64    `json:"total_amount"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Owner addresses a cart by exactly one identity: an authenticated user id
// or an opaque guest session token. How the token reaches the service
// (cookie, header) is the transport layer's concern.
type Owner struct {
	UserID    string
	SessionID string
}

// Valid reports whether exactly one identity is set.
func (o Owner) Valid() bool {
	return (o.UserID != "") != (o.SessionID != "")
}

// Guest reports whether the owner is a session-correlated guest.
func (o Owner) Guest() bool { return o.UserID == "" }

// NewCart creates an empty cart for the owner.
func NewCart(o Owner, now time.Time) *Cart {
	return &Cart{
		UserID:    o.UserID,
		SessionID: o.SessionID,
		Items:     []LineItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Cart) lineIndex(productID, variantID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID && c.Items[i].VariantID == variantID {
			return i
		}
	}
	return -1
}

// AddLine merges the item into an existing line by (product, variant) key
// or appends a new line. The merged quantity must stay within MaxQuantity.
func (c *Cart) AddLine(item LineItem, now time.Time) error {
	if item.Quantity < 1 || item.Quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	idx := c.lineIndex(item.ProductID, item.VariantID)
	if idx >= 0 {
		if c.Items[idx].Quantity+item.Quantity > MaxQuantity {
			return ErrQuantityLimit
		}
		c.Items[idx].Quantity += item.Quantity
	} else {
		c.Items = append(c.Items, item)
	}
	c.recompute(now)
	return nil
}

// SetQuantity replaces a line's quantity. Zero or negative is rejected;
// removal is explicit via RemoveLine.
func (c *Cart) SetQuantity(productID, variantID string, quantity int, now time.Time) error {
	if quantity < 1 || quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	idx := c.lineIndex(productID, variantID)
	if idx < 0 {
		return ErrItemNotFound
	}
	c.Items[idx].Quantity = quantity
	c.recompute(now)
	return nil
}

// RemoveLine removes a line if present. Removing an absent line is a no-op
// so client retries stay simple.
func (c *Cart) RemoveLine(productID, variantID string, now time.Time) {
	idx := c.lineIndex(productID, variantID)
	if idx < 0 {
		return
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	c.recompute(now)
}

// Clear empties the cart, used after successful order placement.
func (c *Cart) Clear(now time.Time) {
	c.Items = []LineItem{}
	c.recompute(now)
}

func (c *Cart) recompute(now time.Time) {
	totalItems := 0
	totalAmount := 0.0
	for _, it := range c.Items {
		totalItems += it.Quantity
		totalAmount += it.UnitPrice * float64(it.Quantity)
	}
	c.TotalItems = totalItems
	c.TotalAmount = totalAmount
	c.UpdatedAt = now
}
