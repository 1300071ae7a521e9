package stacking

import (
	"github.com/shopspring/decimal"

	"dealstack-api/internal/models"
)

// applyOutcome is the result of sequentially applying a stack to a price.
// Amounts are unrounded; rounding happens once at output.
type applyOutcome struct {
	finalPrice   decimal.Decimal
	totalSavings decimal.Decimal
	confidence   float64
	clamped      bool
}

// applySequential applies deals in the given order. Percentage deals
// discount the current running price (capped at max_discount when
// present); fixed deals discount their value once against the original
// price. The running price is floored at zero.
func applySequential(deals []models.Deal, basePrice decimal.Decimal) applyOutcome {
	current := basePrice
	clamped := false
	confidence := 1.0

	for _, deal := range deals {
		var discount decimal.Decimal
		switch deal.ValueType {
		case models.ValuePercentage:
			discount = current.Mul(deal.Value).Div(decimal.NewFromInt(100))
			if deal.MaxDiscount != nil && discount.GreaterThan(*deal.MaxDiscount) {
				discount = *deal.MaxDiscount
			}
		case models.ValueFixed:
			discount = deal.Value
		}

		current = current.Sub(discount)
		if current.IsNegative() {
			current = decimal.Zero
			clamped = true
		}

		if deal.Confidence < confidence {
			confidence = deal.Confidence
		}
	}

	return applyOutcome{
		finalPrice:   current,
		totalSavings: basePrice.Sub(current),
		confidence:   confidence,
		clamped:      clamped,
	}
}

// roundMoney rounds a monetary amount to two places, half to even.
func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}
