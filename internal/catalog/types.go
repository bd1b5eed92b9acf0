package catalog

// Pricing type tokens as persisted on product records.
const (
	PricingFixed       = "fixed"
	PricingVariants    = "variants"
	PricingCustomRange = "custom_range"
)

// Pricing is the tagged union of the three mutually exclusive pricing modes.
// Exactly one concrete payload is populated per product; switching modes
// replaces the payload rather than accumulating optional fields.
type Pricing interface {
	pricingType() string
}

// FixedPricing is a single catalog price.
type FixedPricing struct {
	Price float64
}

// VariantPricing prices the product per variant (e.g. bouquet size).
type VariantPricing struct {
	Variants []Variant
}

// RangePricing lets the customer choose a price within [MinPrice, MaxPrice].
type RangePricing struct {
	MinPrice float64
	MaxPrice float64
}

func (FixedPricing) pricingType() string   { return PricingFixed }
func (VariantPricing) pricingType() string { return PricingVariants }
func (RangePricing) pricingType() string   { return PricingCustomRange }

// PricingType returns the wire token for a pricing payload.
func PricingType(p Pricing) string {
	if p == nil {
		return ""
	}
	return p.pricingType()
}

// Variant is a named, independently priced sub-option of a product.
type Variant struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	IsActive bool    `json:"isActive"`
	Order    int     `json:"order"`
}

// Product is the catalog view the core needs. Read-only here; catalog
// writes happen in the back-office, outside this service.
type Product struct {
	ID       string
	Name     string
	Image    string
	IsActive bool
	Pricing  Pricing
}

// HasVariants reports whether the product is priced per variant.
func (p Product) HasVariants() bool {
	_, ok := p.Pricing.(VariantPricing)
	return ok
}
