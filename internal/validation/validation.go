package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"dealstack-api/internal/models"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

var dealTypes = map[models.DealType]bool{
	models.DealTypeCoupon:      true,
	models.DealTypeCashback:    true,
	models.DealTypeDiscount:    true,
	models.DealTypeCardOffer:   true,
	models.DealTypeWalletOffer: true,
	models.DealTypeMembership:  true,
	models.DealTypeReferral:    true,
	models.DealTypeBundle:      true,
}

func ValidateDeal(deal models.Deal) error {
	if deal.ID == "" {
		return &ValidationError{Field: "id", Message: "is required"}
	}

	if !dealTypes[deal.Type] {
		return &ValidationError{
			Field:   "deal_type",
			Message: fmt.Sprintf("unknown deal type %q", deal.Type),
		}
	}

	switch deal.ValueType {
	case models.ValuePercentage:
		if deal.Value.IsNegative() || deal.Value.GreaterThan(decimal.NewFromInt(100)) {
			return &ValidationError{
				Field:   "value",
				Message: "percentage value must be between 0 and 100",
			}
		}
	case models.ValueFixed:
		if deal.Value.IsNegative() {
			return &ValidationError{
				Field:   "value",
				Message: "fixed value must be non-negative",
			}
		}
		if deal.MaxDiscount != nil {
			return &ValidationError{
				Field:   "max_discount",
				Message: "only meaningful for percentage deals",
			}
		}
	default:
		return &ValidationError{
			Field:   "value_type",
			Message: fmt.Sprintf("must be %q or %q", models.ValuePercentage, models.ValueFixed),
		}
	}

	if deal.Confidence < 0 || deal.Confidence > 1 {
		return &ValidationError{
			Field:   "confidence",
			Message: "must be between 0 and 1",
		}
	}

	if deal.MinPurchase != nil && deal.MinPurchase.IsNegative() {
		return &ValidationError{
			Field:   "min_purchase",
			Message: "must be non-negative",
		}
	}

	if deal.MaxDiscount != nil && deal.MaxDiscount.IsNegative() {
		return &ValidationError{
			Field:   "max_discount",
			Message: "must be non-negative",
		}
	}

	return nil
}

func ValidateCard(card models.Card) error {
	if card.ID == "" {
		return &ValidationError{Field: "id", Message: "is required"}
	}

	if card.BankName == "" {
		return &ValidationError{Field: "bank_name", Message: "is required"}
	}

	if card.BaseRewardRate.IsNegative() {
		return &ValidationError{
			Field:   "base_reward_rate",
			Message: "must be non-negative",
		}
	}

	if card.RewardType != models.RewardPoints && card.RewardType != models.RewardCashback {
		return &ValidationError{
			Field:   "reward_type",
			Message: fmt.Sprintf("must be %q or %q", models.RewardPoints, models.RewardCashback),
		}
	}

	if card.PointValueINR.IsNegative() {
		return &ValidationError{
			Field:   "point_value_inr",
			Message: "must be non-negative",
		}
	}

	for category, rate := range card.CategoryRewards {
		if rate.IsNegative() {
			return &ValidationError{
				Field:   fmt.Sprintf("category_rewards[%s]", category),
				Message: "must be non-negative",
			}
		}
	}

	one := decimal.NewFromInt(1)
	for i, offer := range card.BankOffers {
		if offer.Merchant == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("bank_offers[%d].merchant", i),
				Message: "is required",
			}
		}
		if offer.Discount.IsNegative() || offer.Discount.GreaterThan(one) {
			return &ValidationError{
				Field:   fmt.Sprintf("bank_offers[%d].discount", i),
				Message: "must be a fraction between 0 and 1",
			}
		}
	}

	for i, milestone := range card.MilestoneConfig {
		if milestone.Threshold <= 0 {
			return &ValidationError{
				Field:   fmt.Sprintf("milestone_config[%d].threshold", i),
				Message: "must be positive",
			}
		}
		if milestone.RewardValue.IsNegative() {
			return &ValidationError{
				Field:   fmt.Sprintf("milestone_config[%d].reward_value", i),
				Message: "must be non-negative",
			}
		}
	}

	return nil
}

// ValidateBasePrice enforces the positive-price contract shared by the
// stacking and card benefit entry points.
func ValidateBasePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return &ValidationError{
			Field:   "base_price",
			Message: "must be positive",
		}
	}
	return nil
}

func ValidateStackRequest(deals []models.Deal, basePrice decimal.Decimal) error {
	if err := ValidateBasePrice(basePrice); err != nil {
		return err
	}

	for i, deal := range deals {
		if err := ValidateDeal(deal); err != nil {
			return fmt.Errorf("invalid deal at index %d: %w", i, err)
		}
	}

	return nil
}

func ValidateRankDealsRequest(req models.RankDealsRequest) error {
	if req.DealID == "" {
		return &ValidationError{Field: "deal_id", Message: "is required"}
	}

	if !req.OriginalPrice.IsPositive() {
		return &ValidationError{
			Field:   "original_price",
			Message: "must be positive",
		}
	}

	if req.DealDiscount.IsNegative() {
		return &ValidationError{
			Field:   "deal_discount",
			Message: "must be non-negative",
		}
	}

	return nil
}

func ValidateOfferRankingRequest(req models.OfferRankingRequest) error {
	if req.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "is required"}
	}

	if len(req.DealIDs) == 0 {
		return &ValidationError{Field: "deals", Message: "at least one deal id is required"}
	}

	if req.MaxResults < 0 {
		return &ValidationError{
			Field:   "max_results",
			Message: "must be non-negative",
		}
	}

	return nil
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}
