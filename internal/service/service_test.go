package service

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dealstack-api/internal/cache"
	"dealstack-api/internal/database"
	"dealstack-api/internal/events"
	"dealstack-api/internal/features"
	"dealstack-api/internal/models"
	"dealstack-api/internal/ranking"
	"dealstack-api/internal/validation"
)

func setupTestService(t *testing.T) *Service {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ff := features.NewManager()
	ff.Register(features.FeatureCacheEnabled, false, "")
	ff.Register(features.FeaturePersonalization, true, "")
	ff.Register(features.FeatureStackingSuggestions, true, "")
	t.Cleanup(ff.Shutdown)

	ev := events.NewManager(false)
	t.Cleanup(ev.Shutdown)

	svc, err := NewService(db, cache.NewInMemoryCache(), ev, ff, ranking.DefaultWeights(), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return svc
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func testDeal(t *testing.T, id string) models.Deal {
	t.Helper()
	price := dec(t, "1000")
	return models.Deal{
		ID:            id,
		Title:         "10% off electronics",
		Type:          models.DealTypeCoupon,
		Value:         dec(t, "10"),
		ValueType:     models.ValuePercentage,
		Code:          "SAVE10",
		Platform:      "amazon",
		Confidence:    0.9,
		Stackable:     true,
		Priority:      1,
		Merchant:      "amazon",
		Category:      "electronics",
		OriginalPrice: &price,
	}
}

func TestNewServiceRejectsBadWeights(t *testing.T) {
	svc := setupTestService(t)

	_, err := NewService(svc.db, svc.cache, svc.events, svc.features, ranking.Weights{}, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for all-zero weights")
	}
}

func TestCreateAndGetDeal(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	deal := testDeal(t, uuid.New().String())

	if err := svc.CreateDeal(ctx, deal); err != nil {
		t.Fatalf("CreateDeal failed: %v", err)
	}

	got, err := svc.GetDeal(ctx, deal.ID)
	if err != nil {
		t.Fatalf("GetDeal failed: %v", err)
	}
	if got.Title != deal.Title {
		t.Errorf("expected title %q, got %q", deal.Title, got.Title)
	}
	if !got.Value.Equal(deal.Value) {
		t.Errorf("expected value %s, got %s", deal.Value, got.Value)
	}
}

func TestGetDealNotFound(t *testing.T) {
	svc := setupTestService(t)

	_, err := svc.GetDeal(context.Background(), uuid.New().String())
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestCreateDealValidation(t *testing.T) {
	svc := setupTestService(t)
	deal := testDeal(t, uuid.New().String())
	deal.Value = dec(t, "150") // percentage over 100

	err := svc.CreateDeal(context.Background(), deal)
	var verr *validation.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Field != "value" {
		t.Errorf("expected field 'value', got %q", verr.Field)
	}
}

func TestOptimizeStack(t *testing.T) {
	svc := setupTestService(t)

	coupon := testDeal(t, "cp1")
	cashback := testDeal(t, "cb1")
	cashback.Type = models.DealTypeCashback
	cashback.Value = dec(t, "5")
	cashback.Priority = 0

	result, err := svc.OptimizeStack(context.Background(), models.StackDealsRequest{
		Deals:     []models.Deal{coupon, cashback},
		BasePrice: dec(t, "1000"),
		Merchant:  "amazon",
	})
	if err != nil {
		t.Fatalf("OptimizeStack failed: %v", err)
	}

	if len(result.Deals) != 2 {
		t.Fatalf("expected both deals stacked, got %d", len(result.Deals))
	}
	// 1000 -> 5% = 950 -> 10% = 855.
	if !result.FinalPrice.Equal(dec(t, "855")) {
		t.Errorf("expected final price 855, got %s", result.FinalPrice)
	}
}

func TestOptimizeStackRejectsBadPrice(t *testing.T) {
	svc := setupTestService(t)

	_, err := svc.OptimizeStack(context.Background(), models.StackDealsRequest{
		Deals:     []models.Deal{testDeal(t, "cp1")},
		BasePrice: decimal.Zero,
	})
	var verr *validation.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateStack(t *testing.T) {
	svc := setupTestService(t)

	first := testDeal(t, "cp1")
	second := testDeal(t, "cp2")

	resp, err := svc.ValidateStack(context.Background(), models.ValidateStackRequest{
		Deals:     []models.Deal{first, second},
		BasePrice: dec(t, "1000"),
	})
	if err != nil {
		t.Fatalf("ValidateStack failed: %v", err)
	}
	if resp.Valid {
		t.Error("expected two coupons to be invalid")
	}
	if resp.Error == "" {
		t.Error("expected a rule-naming error message")
	}
}

func TestRankDealsForCards(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New().String()

	basic := models.Card{
		ID:             "card-basic",
		UserID:         userID,
		BankName:       "ICICI",
		CardType:       "Coral",
		BaseRewardRate: dec(t, "1"),
		RewardType:     models.RewardCashback,
		PointValueINR:  decimal.Zero,
		IsActive:       true,
	}
	premium := models.Card{
		ID:             "card-premium",
		UserID:         userID,
		BankName:       "HDFC",
		CardType:       "Infinia",
		BaseRewardRate: dec(t, "5"),
		RewardType:     models.RewardPoints,
		PointValueINR:  dec(t, "1"),
		IsActive:       true,
	}
	for _, card := range []models.Card{basic, premium} {
		if err := svc.CreateCard(ctx, card); err != nil {
			t.Fatalf("CreateCard failed: %v", err)
		}
	}

	resp, err := svc.RankDealsForCards(ctx, userID, models.RankDealsRequest{
		DealID:        "deal-1",
		MerchantName:  "amazon",
		Category:      "electronics",
		OriginalPrice: dec(t, "1000"),
		DealDiscount:  dec(t, "100"),
	})
	if err != nil {
		t.Fatalf("RankDealsForCards failed: %v", err)
	}

	if len(resp.Rankings) != 2 {
		t.Fatalf("expected 2 rankings, got %d", len(resp.Rankings))
	}
	if resp.Rankings[0].CardID != "card-premium" {
		t.Errorf("expected premium card first, got %s", resp.Rankings[0].CardID)
	}
	if resp.Rankings[0].Score.LessThan(resp.Rankings[1].Score) {
		t.Error("rankings not sorted by score descending")
	}
}

func TestRankOffersWithDefaults(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New().String()

	first := testDeal(t, "deal-a")
	second := testDeal(t, "deal-b")
	second.Value = dec(t, "30")
	for _, deal := range []models.Deal{first, second} {
		if err := svc.CreateDeal(ctx, deal); err != nil {
			t.Fatalf("CreateDeal failed: %v", err)
		}
	}

	resp, err := svc.RankOffers(ctx, models.OfferRankingRequest{
		UserID:  userID,
		DealIDs: []string{"deal-a", "deal-b"},
	})
	if err != nil {
		t.Fatalf("RankOffers failed: %v", err)
	}

	if resp.TotalCount != 2 {
		t.Fatalf("expected 2 ranked offers, got %d", resp.TotalCount)
	}
	if resp.PersonalizationApplied {
		t.Error("expected defaults when the user has no profile")
	}
	if resp.RankedOffers[0].Deal.ID != "deal-b" {
		t.Errorf("expected higher-value deal first, got %s", resp.RankedOffers[0].Deal.ID)
	}
}

func TestRankOffersUsesStoredPreferences(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New().String()

	if err := svc.CreateDeal(ctx, testDeal(t, "deal-a")); err != nil {
		t.Fatalf("CreateDeal failed: %v", err)
	}

	prefs := models.DefaultPreferences(userID)
	prefs.FavoriteCategories = []string{"electronics"}
	if err := svc.UpdatePreferences(ctx, prefs); err != nil {
		t.Fatalf("UpdatePreferences failed: %v", err)
	}

	resp, err := svc.RankOffers(ctx, models.OfferRankingRequest{
		UserID:  userID,
		DealIDs: []string{"deal-a"},
	})
	if err != nil {
		t.Fatalf("RankOffers failed: %v", err)
	}
	if !resp.PersonalizationApplied {
		t.Error("expected personalization with a stored profile")
	}
}

func TestRankOffersSkipsUnknownDeals(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	if err := svc.CreateDeal(ctx, testDeal(t, "deal-a")); err != nil {
		t.Fatalf("CreateDeal failed: %v", err)
	}

	resp, err := svc.RankOffers(ctx, models.OfferRankingRequest{
		UserID:  uuid.New().String(),
		DealIDs: []string{"deal-a", "no-such-deal"},
	})
	if err != nil {
		t.Fatalf("RankOffers failed: %v", err)
	}
	if resp.TotalCount != 1 {
		t.Errorf("expected unknown ids skipped, got %d offers", resp.TotalCount)
	}
}

func TestRankOffersMaxResults(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	for _, id := range []string{"d1", "d2", "d3"} {
		if err := svc.CreateDeal(ctx, testDeal(t, id)); err != nil {
			t.Fatalf("CreateDeal failed: %v", err)
		}
	}

	resp, err := svc.RankOffers(ctx, models.OfferRankingRequest{
		UserID:     uuid.New().String(),
		DealIDs:    []string{"d1", "d2", "d3"},
		MaxResults: 2,
	})
	if err != nil {
		t.Fatalf("RankOffers failed: %v", err)
	}
	if resp.TotalCount != 2 {
		t.Errorf("expected 2 offers, got %d", resp.TotalCount)
	}
}

func TestRankOffersServedFromCache(t *testing.T) {
	svc := setupTestService(t)
	svc.features.Enable(features.FeatureCacheEnabled)
	ctx := context.Background()
	userID := uuid.New().String()

	if err := svc.CreateDeal(ctx, testDeal(t, "deal-a")); err != nil {
		t.Fatalf("CreateDeal failed: %v", err)
	}

	req := models.OfferRankingRequest{UserID: userID, DealIDs: []string{"deal-a"}}
	first, err := svc.RankOffers(ctx, req)
	if err != nil {
		t.Fatalf("RankOffers failed: %v", err)
	}

	second, err := svc.RankOffers(ctx, req)
	if err != nil {
		t.Fatalf("cached RankOffers failed: %v", err)
	}
	if !second.RankingTimestamp.Equal(first.RankingTimestamp) {
		t.Error("expected the second response to come from cache")
	}
}

func TestRecordActivityFeedsRanking(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	userID := uuid.New().String()

	purchases := []models.Purchase{
		{Merchant: "amazon", Category: "electronics", Amount: dec(t, "900"), Currency: "INR", Timestamp: time.Now().UTC()},
	}
	browsing := []models.BrowsingEvent{
		{Category: "electronics", Merchant: "amazon", Timestamp: time.Now().UTC()},
	}
	if err := svc.RecordActivity(ctx, userID, purchases, browsing); err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}

	activity, err := svc.db.GetUserActivity(userID, 50)
	if err != nil {
		t.Fatalf("GetUserActivity failed: %v", err)
	}
	if len(activity.RecentPurchases) != 1 {
		t.Errorf("expected 1 purchase, got %d", len(activity.RecentPurchases))
	}
	if len(activity.BrowsingHistory) != 1 {
		t.Errorf("expected 1 browsing event, got %d", len(activity.BrowsingHistory))
	}
}

func TestRecordActivityRequiresUser(t *testing.T) {
	svc := setupTestService(t)

	err := svc.RecordActivity(context.Background(), "", nil, nil)
	var verr *validation.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
