package cardbenefit

import (
	"testing"

	"github.com/shopspring/decimal"

	"dealstack-api/internal/models"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func testCard(t *testing.T) models.Card {
	t.Helper()
	return models.Card{
		ID:             "card-1",
		UserID:         "user-1",
		BankName:       "HDFC",
		CardType:       "Infinia",
		BaseRewardRate: dec(t, "5"),
		RewardType:     models.RewardPoints,
		PointValueINR:  dec(t, "1"),
		CategoryRewards: map[string]decimal.Decimal{
			"electronics": dec(t, "10"),
		},
		BankOffers: []models.BankOffer{
			{Merchant: "Amazon", Discount: dec(t, "0.10")},
		},
		IsActive: true,
	}
}

func TestAnalyzeBaseCategoryAndBankOffer(t *testing.T) {
	card := testCard(t)

	analysis, err := Analyze(card, "amazon", "electronics", dec(t, "1000"), dec(t, "50"))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if !analysis.BaseReward.Equal(dec(t, "50")) {
		t.Errorf("expected base reward 50, got %s", analysis.BaseReward)
	}
	if !analysis.CategoryBonus.Equal(dec(t, "100")) {
		t.Errorf("expected category bonus 100, got %s", analysis.CategoryBonus)
	}
	// Bank offer merchant match is case-insensitive: 0.10 * 1000 = 100.
	if !analysis.BankOfferDiscount.Equal(dec(t, "100")) {
		t.Errorf("expected bank offer discount 100, got %s", analysis.BankOfferDiscount)
	}
	if !analysis.TotalBenefit.Equal(dec(t, "250")) {
		t.Errorf("expected total benefit 250, got %s", analysis.TotalBenefit)
	}
	if !analysis.TotalSavings.Equal(dec(t, "300")) {
		t.Errorf("expected total savings 300 (deal discount included), got %s", analysis.TotalSavings)
	}
	if !analysis.EffectivePrice.Equal(dec(t, "700")) {
		t.Errorf("expected effective price 700, got %s", analysis.EffectivePrice)
	}
	if analysis.PointsEarned != 50 {
		t.Errorf("expected 50 points from the base rate, got %d", analysis.PointsEarned)
	}
	if analysis.CardName != "HDFC Infinia" {
		t.Errorf("unexpected card name %q", analysis.CardName)
	}
}

func TestAnalyzeNoCategoryOrMerchantMatch(t *testing.T) {
	card := testCard(t)

	analysis, err := Analyze(card, "flipkart", "groceries", dec(t, "1000"), decimal.Zero)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if !analysis.CategoryBonus.IsZero() {
		t.Errorf("expected no category bonus, got %s", analysis.CategoryBonus)
	}
	if !analysis.BankOfferDiscount.IsZero() {
		t.Errorf("expected no bank offer discount, got %s", analysis.BankOfferDiscount)
	}
	if !analysis.TotalBenefit.Equal(dec(t, "50")) {
		t.Errorf("expected total benefit 50, got %s", analysis.TotalBenefit)
	}
}

func TestAnalyzeRejectsNonPositivePrice(t *testing.T) {
	card := testCard(t)

	if _, err := Analyze(card, "amazon", "electronics", decimal.Zero, decimal.Zero); err == nil {
		t.Error("expected error for zero price")
	}
	if _, err := Analyze(card, "amazon", "electronics", dec(t, "-1"), decimal.Zero); err == nil {
		t.Error("expected error for negative price")
	}
}

func TestAnalyzePointsOnlyForPointsCards(t *testing.T) {
	card := testCard(t)
	card.RewardType = models.RewardCashback

	analysis, err := Analyze(card, "amazon", "electronics", dec(t, "1000"), decimal.Zero)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if analysis.PointsEarned != 0 {
		t.Errorf("cashback card must not earn points, got %d", analysis.PointsEarned)
	}
	if !analysis.PointsValueINR.IsZero() {
		t.Errorf("expected zero points value, got %s", analysis.PointsValueINR)
	}
}

func TestAnalyzePointsAreFloored(t *testing.T) {
	card := testCard(t)
	card.BaseRewardRate = dec(t, "1.5")

	// 1.5% of 999 = 14.985, floored to 14.
	analysis, err := Analyze(card, "flipkart", "groceries", dec(t, "999"), decimal.Zero)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if analysis.PointsEarned != 14 {
		t.Errorf("expected 14 points, got %d", analysis.PointsEarned)
	}
}

func TestAnalyzeScoreWithMilestoneBonus(t *testing.T) {
	card := testCard(t)
	card.CurrentPoints = 900
	card.MilestoneConfig = []models.Milestone{
		{Threshold: 1500, RewardValue: dec(t, "500")},
	}

	analysis, err := Analyze(card, "flipkart", "groceries", dec(t, "1000"), decimal.Zero)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if analysis.MilestoneProgress == nil {
		t.Fatal("expected milestone progress")
	}
	// 900 + 50 earned = 950, 550 short of 1500: within the 1000-point
	// window, so the milestone bonus applies.
	// score = 50 savings + 0.5*50 points value + 2*(0.1*500) = 175.
	if !analysis.Score.Equal(dec(t, "175")) {
		t.Errorf("expected score 175, got %s", analysis.Score)
	}
}

func TestAnalyzeScoreWithoutMilestoneBonus(t *testing.T) {
	card := testCard(t)
	card.CurrentPoints = 0
	card.MilestoneConfig = []models.Milestone{
		{Threshold: 5000, RewardValue: dec(t, "500")},
	}

	analysis, err := Analyze(card, "flipkart", "groceries", dec(t, "1000"), decimal.Zero)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	// 4950 points away: no milestone bonus in the score.
	// score = 50 savings + 0.5*50 points value = 75.
	if !analysis.Score.Equal(dec(t, "75")) {
		t.Errorf("expected score 75, got %s", analysis.Score)
	}
}

func TestNextMilestoneFirstMatchInSourceOrder(t *testing.T) {
	milestones := []models.Milestone{
		{Threshold: 5000, RewardValue: dec(t, "1000")},
		{Threshold: 2000, RewardValue: dec(t, "300")},
	}

	// Both thresholds are ahead; the first entry wins even though the
	// second is numerically closer.
	progress := NextMilestone(milestones, 1000, 0)
	if progress == nil {
		t.Fatal("expected milestone progress")
	}
	if progress.NextMilestone != 5000 {
		t.Errorf("expected first-match milestone 5000, got %d", progress.NextMilestone)
	}
	if progress.PointsToMilestone != 4000 {
		t.Errorf("expected 4000 points to milestone, got %d", progress.PointsToMilestone)
	}
}

func TestNextMilestoneAllReached(t *testing.T) {
	milestones := []models.Milestone{
		{Threshold: 1000, RewardValue: dec(t, "100")},
	}

	if progress := NextMilestone(milestones, 900, 200); progress != nil {
		t.Errorf("expected nil when every threshold is reached, got %+v", progress)
	}
}

func TestNextMilestoneExactThresholdIsReached(t *testing.T) {
	milestones := []models.Milestone{
		{Threshold: 1000, RewardValue: dec(t, "100")},
	}

	// Landing exactly on the threshold means it is reached, not pending.
	if progress := NextMilestone(milestones, 800, 200); progress != nil {
		t.Errorf("expected nil at exact threshold, got %+v", progress)
	}
}

func TestNextMilestoneNoConfig(t *testing.T) {
	if progress := NextMilestone(nil, 100, 50); progress != nil {
		t.Errorf("expected nil without milestones, got %+v", progress)
	}
}
