package stacking

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"dealstack-api/internal/models"
)

// Optimize builds the savings-maximizing legal stack from the candidate
// deals. The rules allow at most one coupon slot and at most one
// exclusive slot (which then holds the whole stack), so the search is the
// cross of {no coupon, each coupon} with all other eligible stackable
// deals, plus each exclusive deal alone. Linear in catalog size.
//
// Ineligible or incompatible deals are excluded and reported as warnings;
// Optimize never fails on well-formed input.
func Optimize(deals []models.Deal, basePrice decimal.Decimal, merchant string) models.StackedDealResult {
	start := time.Now()

	var warnings []string
	var coupons, others, exclusives []models.Deal

	for _, deal := range deals {
		if v := CheckEligible(deal, basePrice, merchant); v != nil {
			warnings = append(warnings, fmt.Sprintf("deal %s excluded: %s", deal.ID, v.Message))
			continue
		}
		switch {
		case !deal.Stackable:
			exclusives = append(exclusives, deal)
		case deal.Type == models.DealTypeCoupon:
			coupons = append(coupons, deal)
		default:
			others = append(others, deal)
		}
	}

	// Candidate combinations, enumerated in a fixed order so ties always
	// resolve the same way.
	var combos [][]models.Deal
	combos = append(combos, append([]models.Deal(nil), others...))
	for _, coupon := range coupons {
		combo := append([]models.Deal(nil), others...)
		combos = append(combos, append(combo, coupon))
	}
	for _, exclusive := range exclusives {
		combos = append(combos, []models.Deal{exclusive})
	}

	best := evaluate(combos[0], basePrice)
	bestDeals := combos[0]
	for _, combo := range combos[1:] {
		outcome := evaluate(combo, basePrice)
		if better(outcome, len(combo), best, len(bestDeals)) {
			best = outcome
			bestDeals = combo
		}
	}

	applied := orderByPriority(bestDeals)
	if best.clamped {
		warnings = append(warnings, "final price clamped at zero")
	}

	order := make([]string, 0, len(applied))
	for _, deal := range applied {
		order = append(order, deal.ID)
	}
	if warnings == nil {
		warnings = []string{}
	}

	return models.StackedDealResult{
		Deals:            applied,
		TotalSavings:     roundMoney(best.totalSavings),
		FinalPrice:       roundMoney(best.finalPrice),
		OriginalPrice:    roundMoney(basePrice),
		Confidence:       best.confidence,
		ApplicationOrder: order,
		Warnings:         warnings,
		ProcessingTime:   time.Since(start).Seconds(),
	}
}

// evaluate applies a combination in priority order and returns the outcome.
func evaluate(combo []models.Deal, basePrice decimal.Decimal) applyOutcome {
	return applySequential(orderByPriority(combo), basePrice)
}

// better ranks outcomes: higher savings, then higher confidence, then the
// simpler stack with fewer deals.
func better(a applyOutcome, aLen int, b applyOutcome, bLen int) bool {
	if !a.totalSavings.Equal(b.totalSavings) {
		return a.totalSavings.GreaterThan(b.totalSavings)
	}
	if a.confidence != b.confidence {
		return a.confidence > b.confidence
	}
	return aLen < bLen
}

// orderByPriority sorts ascending by priority, ties broken by id.
func orderByPriority(deals []models.Deal) []models.Deal {
	sorted := append([]models.Deal(nil), deals...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}
