package validation

import (
	"fmt"
	"math"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// register struct-level validation for ConfirmPaymentRequest to ensure
	// the provided TotalAmount matches the sum of (unit_price * quantity) of items.
	v.RegisterStructValidation(confirmPaymentStructValidation, ConfirmPaymentRequest{})

	return v
}

// confirmPaymentStructValidation verifies the aggregated total of items equals TotalAmount (within cents)
func confirmPaymentStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(ConfirmPaymentRequest)

	var sum float64
	for _, it := range req.Items {
		sum += float64(it.Quantity) * it.UnitPrice
	}

	sumCents := int(math.Round(sum * 100))
	amountCents := int(math.Round(req.TotalAmount * 100))
	if sumCents != amountCents {
		sl.ReportError(req.TotalAmount, "total_amount", "TotalAmount", "amount_match_items", fmt.Sprintf("items sum %.2f != total %.2f", sum, req.TotalAmount))
	}
}
