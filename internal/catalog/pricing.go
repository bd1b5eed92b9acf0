package catalog

import (
	"errors"
	"fmt"
)

// Pricing resolution failures.
var (
	ErrInvalidProduct  = errors.New("catalog: product has no usable price")
	ErrVariantNotFound = errors.New("catalog: variant not found")
	ErrVariantInactive = errors.New("catalog: variant is inactive")
	ErrPriceOutOfRange = errors.New("catalog: price outside allowed range")
)

// Selector identifies one variant of a product. Clients may hold stale
// variant ids across catalog edits, so resolution tries ID, then Name,
// then Index, in that order.
type Selector struct {
	VariantID   string
	VariantName string
	Index       *int
}

// Resolved is the authoritative outcome of price resolution.
type Resolved struct {
	UnitPrice   float64
	VariantID   string
	VariantName string
}

// ResolvePrice computes the authoritative unit price for a product given a
// variant selector and, for custom_range products, the customer-chosen
// price. Pure function of its inputs.
func ResolvePrice(p Product, sel Selector, customPrice *float64) (Resolved, error) {
	switch pricing := p.Pricing.(type) {
	case FixedPricing:
		if pricing.Price <= 0 {
			return Resolved{}, fmt.Errorf("product %s: %w", p.ID, ErrInvalidProduct)
		}
		return Resolved{UnitPrice: pricing.Price}, nil

	case VariantPricing:
		v, err := findVariant(pricing.Variants, sel)
		if err != nil {
			return Resolved{}, fmt.Errorf("product %s: %w", p.ID, err)
		}
		return Resolved{UnitPrice: v.Price, VariantID: v.ID, VariantName: v.Name}, nil

	case RangePricing:
		if customPrice == nil {
			return Resolved{}, fmt.Errorf("product %s: price required: %w", p.ID, ErrPriceOutOfRange)
		}
		if *customPrice < pricing.MinPrice || *customPrice > pricing.MaxPrice {
			return Resolved{}, fmt.Errorf("product %s: %.2f not in [%.2f, %.2f]: %w",
				p.ID, *customPrice, pricing.MinPrice, pricing.MaxPrice, ErrPriceOutOfRange)
		}
		return Resolved{UnitPrice: *customPrice}, nil

	default:
		return Resolved{}, fmt.Errorf("product %s: unknown pricing payload: %w", p.ID, ErrInvalidProduct)
	}
}

// lookupStrategy returns the index of the matched variant, or -1.
type lookupStrategy func(variants []Variant, sel Selector) int

// Ordered fallback chain: stale ids from old clients fall through to name,
// then positional index.
var variantLookups = []lookupStrategy{lookupByID, lookupByName, lookupByIndex}

func lookupByID(variants []Variant, sel Selector) int {
	if sel.VariantID == "" {
		return -1
	}
	for i := range variants {
		if variants[i].ID == sel.VariantID {
			return i
		}
	}
	return -1
}

func lookupByName(variants []Variant, sel Selector) int {
	if sel.VariantName == "" {
		return -1
	}
	for i := range variants {
		if variants[i].Name == sel.VariantName {
			return i
		}
	}
	return -1
}

func lookupByIndex(variants []Variant, sel Selector) int {
	if sel.Index == nil {
		return -1
	}
	if *sel.Index < 0 || *sel.Index >= len(variants) {
		return -1
	}
	return *sel.Index
}

func findVariant(variants []Variant, sel Selector) (Variant, error) {
	if len(variants) == 0 {
		return Variant{}, ErrVariantNotFound
	}
	for _, lookup := range variantLookups {
		if i := lookup(variants, sel); i >= 0 {
			if !variants[i].IsActive {
				return Variant{}, ErrVariantInactive
			}
			return variants[i], nil
		}
	}
	return Variant{}, ErrVariantNotFound
}

// PriceRange is the displayable price span of a product.
type PriceRange struct {
	Min float64
	Max float64
}

// DisplayRange computes the catalog-facing price range. For variant
// products only active variants count; an empty or all-inactive list
// yields ErrVariantNotFound, never a zero price.
func DisplayRange(p Product) (PriceRange, error) {
	switch pricing := p.Pricing.(type) {
	case FixedPricing:
		if pricing.Price <= 0 {
			return PriceRange{}, ErrInvalidProduct
		}
		return PriceRange{Min: pricing.Price, Max: pricing.Price}, nil
	case VariantPricing:
		var min, max float64
		found := false
		for _, v := range pricing.Variants {
			if !v.IsActive {
				continue
			}
			if !found || v.Price < min {
				min = v.Price
			}
			if !found || v.Price > max {
				max = v.Price
			}
			found = true
		}
		if !found {
			return PriceRange{}, ErrVariantNotFound
		}
		return PriceRange{Min: min, Max: max}, nil
	case RangePricing:
		return PriceRange{Min: pricing.MinPrice, Max: pricing.MaxPrice}, nil
	default:
		return PriceRange{}, ErrInvalidProduct
	}
}

// Format renders the range for display: "à partir de 35.00 €" when the
// range is non-degenerate, else a plain price.
func (r PriceRange) Format() string {
	if r.Min != r.Max {
		return fmt.Sprintf("à partir de %.2f €", r.Min)
	}
	return fmt.Sprintf("%.2f €", r.Min)
}
