package ranking

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dealstack-api/internal/cardbenefit"
	"dealstack-api/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Score computes the composite ranking of one deal for one user. card may
// be nil when the user has no applicable card; the reward-points
// component is then zero.
func Score(deal models.Deal, prefs models.UserPreferences, activity models.UserActivity, card *models.Card, weights Weights, now time.Time) models.RankedOffer {
	components := models.RankingComponents{
		NetSavingsScore:          squash(netSavings(deal)),
		CashbackRealizationScore: cashbackRealization(deal),
		RewardPointsScore:        rewardPoints(deal, card),
		ThresholdProximityScore:  thresholdProximity(deal, activity),
		PersonalPreferenceScore:  personalPreference(deal, prefs, activity),
		UrgencyScore:             urgency(deal, now),
		PopularityScore:          popularity(deal),
		StackingPotentialScore:   stackingPotential(deal),
	}

	score := components.NetSavingsScore*weights.NetSavings +
		components.CashbackRealizationScore*weights.CashbackRealization +
		components.RewardPointsScore*weights.RewardPoints +
		components.ThresholdProximityScore*weights.ThresholdProximity +
		components.PersonalPreferenceScore*weights.PersonalPreference +
		components.UrgencyScore*weights.Urgency +
		components.PopularityScore*weights.Popularity +
		components.StackingPotentialScore*weights.StackingPotential

	return models.RankedOffer{
		Deal:                  deal,
		RankingScore:          score,
		RankingComponents:     components,
		PersonalizationData:   personalization(deal, prefs),
		StackingOpportunities: stackingOpportunities(deal, card),
	}
}

// netSavings is the deal's discount plus its estimated cashback amount,
// in currency units, before squashing.
func netSavings(deal models.Deal) float64 {
	if deal.OriginalPrice == nil {
		return 0
	}
	price := *deal.OriginalPrice

	discount := deal.DiscountAmount(price)
	if deal.ValueType == models.ValuePercentage && deal.MaxDiscount != nil && discount.GreaterThan(*deal.MaxDiscount) {
		discount = *deal.MaxDiscount
	}

	cashback := decimal.Zero
	if deal.CashbackRate != nil {
		finalPrice := price.Sub(discount)
		cashback = finalPrice.Mul(*deal.CashbackRate).Div(hundred)
	}

	return discount.Add(cashback).InexactFloat64()
}

// squash bounds an arbitrarily large amount into (0,1) with a logistic
// centered at 0, scale 100.
func squash(value float64) float64 {
	return 1.0 / (1.0 + math.Exp(-value/100.0))
}

// cashbackRealization scores by settlement speed: instant money beats
// wallet credit beats a bank transfer weeks later.
func cashbackRealization(deal models.Deal) float64 {
	switch deal.CashbackSpeed {
	case models.CashbackInstant:
		return 1.0
	case models.CashbackWallet:
		return 0.8
	case models.CashbackBankTransfer:
		return 0.5
	}
	return 0.3
}

// rewardPoints delegates to the card benefit calculator when a card
// context is supplied, squashing the points value into [0,1].
func rewardPoints(deal models.Deal, card *models.Card) float64 {
	if card == nil || deal.OriginalPrice == nil || !deal.OriginalPrice.IsPositive() {
		return 0
	}

	discount := deal.DiscountAmount(*deal.OriginalPrice)
	analysis, err := cardbenefit.Analyze(*card, deal.Merchant, deal.Category, *deal.OriginalPrice, discount)
	if err != nil {
		return 0
	}

	return squash(analysis.PointsValueINR.InexactFloat64())
}

// thresholdProximity rewards deals whose minimum-order threshold sits just
// above the user's typical spend.
func thresholdProximity(deal models.Deal, activity models.UserActivity) float64 {
	if deal.MinPurchase == nil {
		return 0
	}

	threshold := deal.MinPurchase.InexactFloat64()
	spend := typicalSpend(activity)
	if spend >= threshold*0.8 && spend < threshold {
		return 0.9
	}
	return 0
}

func typicalSpend(activity models.UserActivity) float64 {
	if len(activity.RecentPurchases) == 0 {
		return 0
	}

	total := decimal.Zero
	for _, p := range activity.RecentPurchases {
		total = total.Add(p.Amount)
	}
	return total.Div(decimal.NewFromInt(int64(len(activity.RecentPurchases)))).InexactFloat64()
}

func personalPreference(deal models.Deal, prefs models.UserPreferences, activity models.UserActivity) float64 {
	score := 0.0

	if deal.Category != "" && contains(prefs.FavoriteCategories, deal.Category) {
		score += 0.4
	}
	if contains(prefs.FavoriteMerchants, deal.Merchant) {
		score += 0.4
	}

	recent := 0
	for _, event := range activity.BrowsingHistory {
		if event.Category == deal.Category {
			recent++
		}
	}
	score += math.Min(float64(recent)/10.0, 0.2)

	return score
}

// urgency is a step function on days until expiry.
func urgency(deal models.Deal, now time.Time) float64 {
	days, ok := deal.DaysUntilExpiry(now)
	if !ok {
		return 0.1
	}
	switch {
	case days < 0:
		// Already expired: least urgent, not most.
		return 0.2
	case days <= 1:
		return 1.0
	case days <= 3:
		return 0.8
	case days <= 7:
		return 0.6
	case days <= 14:
		return 0.4
	}
	return 0.2
}

func popularity(deal models.Deal) float64 {
	usage := math.Min(float64(deal.UsageCount)/1000.0, 0.5)

	success := 0.0
	if deal.SuccessRate != nil {
		success = deal.SuccessRate.InexactFloat64() / 100.0 * 0.5
	}

	return usage + success
}

func stackingPotential(deal models.Deal) float64 {
	score := 0.0
	if deal.Code != "" {
		score += 0.3
	}
	if deal.CashbackRate != nil {
		score += 0.4
	}
	if deal.MinPurchase == nil {
		score += 0.3
	}
	return score
}

func personalization(deal models.Deal, prefs models.UserPreferences) models.PersonalizationData {
	affinity := 0.0
	if deal.Category != "" && contains(prefs.FavoriteCategories, deal.Category) {
		affinity = 1.0
	}

	merchantPref := 0.0
	if contains(prefs.FavoriteMerchants, deal.Merchant) {
		merchantPref = 1.0
	}

	paymentCompat := 0.8
	for _, speed := range prefs.PreferredCashbackTypes {
		if deal.CashbackSpeed == speed {
			paymentCompat = 1.0
			break
		}
	}

	return models.PersonalizationData{
		UserCategoryAffinity:       affinity,
		MerchantPreferenceScore:    merchantPref,
		PriceRangeMatch:            priceRangeMatch(deal, prefs),
		PaymentMethodCompatibility: paymentCompat,
		// Location data is an external collaborator we do not consume yet.
		GeographicRelevance: 0.9,
	}
}

func priceRangeMatch(deal models.Deal, prefs models.UserPreferences) float64 {
	if deal.OriginalPrice == nil {
		return 0
	}

	price := deal.OriginalPrice.Sub(deal.DiscountAmount(*deal.OriginalPrice)).InexactFloat64()
	min := prefs.TypicalSpendRange.MinAmount.InexactFloat64()
	max := prefs.TypicalSpendRange.MaxAmount.InexactFloat64()

	switch {
	case price >= min && price <= max:
		return 1.0
	case price < min:
		if min == 0 {
			return 1.0
		}
		return math.Max(price/min, 0)
	default:
		if price == 0 {
			return 0
		}
		return math.Max(max/price, 0)
	}
}

// stackingOpportunities lists the combination classes this deal can take
// part in, from the closed taxonomy.
func stackingOpportunities(deal models.Deal, card *models.Card) []models.StackingOpportunity {
	opportunities := []models.StackingOpportunity{}

	if deal.Code != "" && deal.CashbackRate != nil {
		opportunities = append(opportunities, models.StackingOpportunity{
			StackType:   models.StackCouponPlusCashback,
			Description: "coupon code combines with the deal's cashback",
		})
	}
	if deal.Type == models.DealTypeCardOffer && deal.Stackable {
		opportunities = append(opportunities, models.StackingOpportunity{
			StackType:   models.StackCardOfferPlusCoupon,
			Description: "card offer can take one coupon on top",
		})
	}
	if deal.Type == models.DealTypeWalletOffer && deal.Stackable {
		opportunities = append(opportunities, models.StackingOpportunity{
			StackType:   models.StackBankOfferPlusWallet,
			Description: "wallet offer settles alongside a bank offer",
		})
	}
	if card != nil && card.RewardType == models.RewardPoints {
		opportunities = append(opportunities, models.StackingOpportunity{
			StackType:   models.StackRewardPointsBonus,
			Description: "purchase accrues card reward points on top of the deal",
		})
	}

	return opportunities
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
