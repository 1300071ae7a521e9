package cardbenefit

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"dealstack-api/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Analyze computes the monetary benefit a card contributes to one deal
// context: base reward, category bonus, merchant-matched bank offers,
// points and milestone progress. A non-positive original price is a
// contract violation, not a recoverable condition.
func Analyze(card models.Card, merchantName, category string, originalPrice, dealDiscount decimal.Decimal) (models.CardDealAnalysis, error) {
	if !originalPrice.IsPositive() {
		return models.CardDealAnalysis{}, fmt.Errorf("original price must be positive, got %s", originalPrice)
	}

	baseReward := card.BaseRewardRate.Mul(originalPrice).Div(hundred)

	// Exact-match category lookup; absent key means no bonus.
	categoryBonus := decimal.Zero
	if rate, ok := card.CategoryRewards[category]; ok {
		categoryBonus = rate.Mul(originalPrice).Div(hundred)
	}

	bankOfferDiscount := decimal.Zero
	for _, offer := range card.BankOffers {
		if strings.EqualFold(offer.Merchant, merchantName) {
			bankOfferDiscount = bankOfferDiscount.Add(offer.Discount.Mul(originalPrice))
		}
	}

	totalBenefit := baseReward.Add(categoryBonus).Add(bankOfferDiscount)

	// Deliberately not clamped: a negative effective price signals an
	// upstream misconfiguration worth surfacing.
	effectivePrice := originalPrice.Sub(dealDiscount).Sub(totalBenefit)
	totalSavings := dealDiscount.Add(totalBenefit)
	savingsPercentage := totalSavings.Mul(hundred).Div(originalPrice)

	pointsEarned := 0
	if card.RewardType == models.RewardPoints {
		pointsEarned = int(card.BaseRewardRate.Mul(originalPrice).Div(hundred).Floor().IntPart())
	}
	pointsValue := card.PointValueINR.Mul(decimal.NewFromInt(int64(pointsEarned)))

	progress := NextMilestone(card.MilestoneConfig, card.CurrentPoints, pointsEarned)

	return models.CardDealAnalysis{
		CardID:            card.ID,
		CardName:          fmt.Sprintf("%s %s", card.BankName, card.CardType),
		BankName:          card.BankName,
		BaseReward:        baseReward,
		CategoryBonus:     categoryBonus,
		BankOfferDiscount: bankOfferDiscount,
		TotalBenefit:      totalBenefit,
		EffectivePrice:    effectivePrice,
		TotalSavings:      totalSavings,
		SavingsPercentage: savingsPercentage,
		PointsEarned:      pointsEarned,
		PointsValueINR:    pointsValue,
		MilestoneProgress: progress,
		Score:             score(totalSavings, pointsValue, progress),
	}, nil
}

// score orders cards for a deal: savings plus half the points value plus
// twice the milestone bonus, where a milestone within 1000 points is
// worth a tenth of its reward value.
func score(totalSavings, pointsValue decimal.Decimal, progress *models.MilestoneProgress) decimal.Decimal {
	milestoneBonus := decimal.Zero
	if progress != nil && progress.PointsToMilestone < 1000 {
		milestoneBonus = progress.MilestoneValue.Mul(decimal.NewFromFloat(0.1))
	}

	return totalSavings.
		Add(pointsValue.Mul(decimal.NewFromFloat(0.5))).
		Add(milestoneBonus.Mul(decimal.NewFromInt(2)))
}
