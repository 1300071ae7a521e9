package stacking

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"dealstack-api/internal/models"
)

// Rule names reported when a deal cannot join a stack.
const (
	RuleExclusiveDeal = "exclusive_deal"
	RuleSingleCoupon  = "single_coupon"
	RuleMinPurchase   = "min_purchase"
	RuleMerchantScope = "merchant_scope"
)

// RuleViolation identifies the compatibility rule a deal broke.
type RuleViolation struct {
	Rule    string
	Message string
}

func (e *RuleViolation) Error() string {
	return e.Message
}

// CheckEligible reports whether a deal may be applied at all for this
// checkout, independent of what else is in the stack.
func CheckEligible(deal models.Deal, basePrice decimal.Decimal, merchant string) *RuleViolation {
	if deal.MinPurchase != nil && basePrice.LessThan(*deal.MinPurchase) {
		return &RuleViolation{
			Rule:    RuleMinPurchase,
			Message: fmt.Sprintf("minimum purchase not met for deal %s", deal.ID),
		}
	}

	// Card and bank offers are merchant-scoped; they only apply when the
	// deal's platform matches the checkout merchant.
	if deal.Type == models.DealTypeCardOffer && merchant != "" {
		if !strings.EqualFold(deal.Platform, merchant) {
			return &RuleViolation{
				Rule:    RuleMerchantScope,
				Message: fmt.Sprintf("deal %s does not apply to merchant %s", deal.ID, merchant),
			}
		}
	}

	return nil
}

// CheckCanJoin reports whether a deal may join the given partial stack.
func CheckCanJoin(stack []models.Deal, deal models.Deal) *RuleViolation {
	if !deal.Stackable && len(stack) > 0 {
		return &RuleViolation{
			Rule:    RuleExclusiveDeal,
			Message: fmt.Sprintf("non-stackable deal %s must be applied alone", deal.ID),
		}
	}

	for _, member := range stack {
		if !member.Stackable {
			return &RuleViolation{
				Rule:    RuleExclusiveDeal,
				Message: fmt.Sprintf("non-stackable deal %s must be applied alone", member.ID),
			}
		}
		if member.Type == models.DealTypeCoupon && deal.Type == models.DealTypeCoupon {
			return &RuleViolation{
				Rule:    RuleSingleCoupon,
				Message: "two coupon-type deals",
			}
		}
	}

	return nil
}
