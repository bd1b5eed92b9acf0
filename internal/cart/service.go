package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/bellefleur/bellefleur-backend/internal/catalog"
)

// Service ties cart mutations to catalog lookups and price resolution.
type Service struct {
	products *catalog.Store
	carts    *Store
	nowFunc  func() time.Time
}

// NewService creates a cart Service.
func NewService(products *catalog.Store, carts *Store) *Service {
	return &Service{
		products: products,
		carts:    carts,
		nowFunc:  time.Now,
	}
}

// AddItemInput describes one cart addition. CustomPrice is only honored
// for custom_range products; everywhere else the resolver's price wins.
type AddItemInput struct {
	ProductID   string
	Quantity    int
	Selector    catalog.Selector
	CustomPrice *float64
}

// AddItem resolves the authoritative unit price, merges the line into the
// owner's cart (created lazily) and persists it.
func (s *Service) AddItem(ctx context.Context, o Owner, in AddItemInput) (*Cart, error) {
	if in.Quantity < 1 || in.Quantity > MaxQuantity {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.Get(ctx, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("fetch product: %w", err)
	}
	if p == nil {
		return nil, ErrProductNotFound
	}
	if !p.IsActive {
		return nil, ErrProductInactive
	}

	resolved, err := catalog.ResolvePrice(*p, in.Selector, in.CustomPrice)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc()
	c, err := s.carts.Find(ctx, o)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = NewCart(o, now)
	}

	line := LineItem{
		ProductID:   p.ID,
		VariantID:   resolved.VariantID,
		VariantName: resolved.VariantName,
		Quantity:    in.Quantity,
		UnitPrice:   resolved.UnitPrice,
		Image:       p.Image,
		Name:        p.Name,
	}
	if err := c.AddLine(line, now); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, o, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateQuantity sets a line's quantity. Quantity below 1 is rejected;
// removal is a separate, explicit operation.
func (s *Service) UpdateQuantity(ctx context.Context, o Owner, productID, variantID string, quantity int) (*Cart, error) {
	c, err := s.carts.Find(ctx, o)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrItemNotFound
	}
	if err := c.SetQuantity(productID, variantID, quantity, s.nowFunc()); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, o, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveItem removes a line. Idempotent: an absent item or an absent cart
// returns the current state without error.
func (s *Service) RemoveItem(ctx context.Context, o Owner, productID, variantID string) (*Cart, error) {
	now := s.nowFunc()
	c, err := s.carts.Find(ctx, o)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return NewCart(o, now), nil
	}
	c.RemoveLine(productID, variantID, now)
	if err := s.carts.Save(ctx, o, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ClearItems empties the owner's cart after order placement.
func (s *Service) ClearItems(ctx context.Context, o Owner) (*Cart, error) {
	now := s.nowFunc()
	c, err := s.carts.Find(ctx, o)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return NewCart(o, now), nil
	}
	c.Clear(now)
	if err := s.carts.Save(ctx, o, c); err != nil {
		return nil, err
	}
	return c, nil
}
