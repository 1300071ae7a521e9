package stacking

import (
	"fmt"

	"github.com/shopspring/decimal"

	"dealstack-api/internal/models"
)

// Validate re-checks every compatibility rule against a caller-supplied
// ordered stack without re-optimizing. The first violated rule fails the
// whole stack with a message naming that rule and no partial totals. On
// success the totals are computed by the same sequential application as
// the optimizer, but in exactly the caller's order.
func Validate(deals []models.Deal, basePrice decimal.Decimal, merchant string) models.ValidateStackResponse {
	for i, deal := range deals {
		if v := CheckEligible(deal, basePrice, merchant); v != nil {
			return invalid(v)
		}
		if v := CheckCanJoin(deals[:i], deal); v != nil {
			return invalid(v)
		}
	}

	outcome := applySequential(deals, basePrice)

	warnings := []string{}
	if outcome.clamped {
		warnings = append(warnings, "final price clamped at zero")
	}

	savings := roundMoney(outcome.totalSavings)
	final := roundMoney(outcome.finalPrice)
	confidence := outcome.confidence

	return models.ValidateStackResponse{
		Valid:        true,
		TotalSavings: &savings,
		FinalPrice:   &final,
		Confidence:   &confidence,
		Warnings:     warnings,
	}
}

func invalid(v *RuleViolation) models.ValidateStackResponse {
	return models.ValidateStackResponse{
		Valid:    false,
		Warnings: []string{},
		Error:    fmt.Sprintf("%s: %s", v.Rule, v.Message),
	}
}
