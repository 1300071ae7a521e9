package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dealstack-api/internal/cache"
	"dealstack-api/internal/database"
	"dealstack-api/internal/events"
	"dealstack-api/internal/features"
	"dealstack-api/internal/models"
	"dealstack-api/internal/ranking"
	"dealstack-api/internal/service"
)

func setupTestHandler(t *testing.T) *Handler {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ff := features.NewManager()
	ff.Register(features.FeaturePersonalization, true, "")
	ff.Register(features.FeatureStackingSuggestions, true, "")
	t.Cleanup(ff.Shutdown)

	ev := events.NewManager(false)
	t.Cleanup(ev.Shutdown)

	svc, err := service.NewService(db, cache.NewInMemoryCache(), ev, ff, ranking.DefaultWeights(), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	return NewHandler(svc)
}

func setupRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/stack/optimize", h.OptimizeStack)
	r.Post("/stack/validate", h.ValidateStack)
	r.Post("/deals", h.CreateDeal)
	r.Get("/deals/{deal_id}", h.GetDeal)
	r.Post("/cards", h.CreateCard)
	r.Get("/cards/{card_id}", h.GetCard)
	r.Put("/cards/{card_id}", h.UpdateCard)
	r.Delete("/cards/{card_id}", h.DeleteCard)
	r.Post("/offers/rank", h.RankOffers)
	r.Get("/users/{user_id}/cards", h.GetUserCards)
	r.Post("/users/{user_id}/rank-deals", h.RankDeals)
	r.Put("/users/{user_id}/preferences", h.UpdatePreferences)
	r.Post("/users/{user_id}/activity", h.RecordActivity)
	return r
}

func doJSON(t *testing.T, r *chi.Mux, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func stackDeal(id string, dealType models.DealType, value string) models.Deal {
	v, _ := decimal.NewFromString(value)
	return models.Deal{
		ID:         id,
		Title:      id,
		Type:       dealType,
		Value:      v,
		ValueType:  models.ValuePercentage,
		Platform:   "amazon",
		Confidence: 0.9,
		Stackable:  true,
		Priority:   1,
	}
}

func TestOptimizeStackEndpoint(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	rr := doJSON(t, r, "POST", "/stack/optimize", models.StackDealsRequest{
		Deals:     []models.Deal{stackDeal("cp1", models.DealTypeCoupon, "10")},
		BasePrice: decimal.NewFromInt(1000),
		Merchant:  "amazon",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var result models.StackedDealResult
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !result.FinalPrice.Equal(decimal.NewFromInt(900)) {
		t.Errorf("expected final price 900, got %s", result.FinalPrice)
	}
}

func TestOptimizeStackRejectsInvalidRequest(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	rr := doJSON(t, r, "POST", "/stack/optimize", models.StackDealsRequest{
		Deals:     []models.Deal{stackDeal("cp1", models.DealTypeCoupon, "10")},
		BasePrice: decimal.Zero,
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero base price, got %d", rr.Code)
	}
}

func TestOptimizeStackRejectsEmptyBody(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	req := httptest.NewRequest("POST", "/stack/optimize", strings.NewReader(""))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty body, got %d", rr.Code)
	}
}

func TestOptimizeStackRejectsMalformedJSON(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	req := httptest.NewRequest("POST", "/stack/optimize", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", rr.Code)
	}
}

func TestValidateStackEndpoint(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	rr := doJSON(t, r, "POST", "/stack/validate", models.ValidateStackRequest{
		Deals: []models.Deal{
			stackDeal("cp1", models.DealTypeCoupon, "10"),
			stackDeal("cp2", models.DealTypeCoupon, "5"),
		},
		BasePrice: decimal.NewFromInt(1000),
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp models.ValidateStackResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Valid {
		t.Error("expected two coupons to be rejected")
	}
	if resp.Error == "" {
		t.Error("expected an error message naming the broken rule")
	}
}

func TestCreateAndGetDealEndpoints(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)
	dealID := uuid.New().String()

	rr := doJSON(t, r, "POST", "/deals", stackDeal(dealID, models.DealTypeCoupon, "10"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, r, "GET", "/deals/"+dealID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var deal models.Deal
	if err := json.Unmarshal(rr.Body.Bytes(), &deal); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if deal.ID != dealID {
		t.Errorf("expected deal %s, got %s", dealID, deal.ID)
	}
}

func TestGetDealNotFound(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	rr := doJSON(t, r, "GET", "/deals/"+uuid.New().String(), nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestCreateDealValidationError(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	bad := stackDeal(uuid.New().String(), models.DealTypeCoupon, "150")
	rr := doJSON(t, r, "POST", "/deals", bad)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	var errResp models.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	if errResp.Error == "" {
		t.Error("expected an error message")
	}
}

func TestCardEndpoints(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)
	userID := uuid.New().String()

	card := models.Card{
		ID:             uuid.New().String(),
		UserID:         userID,
		BankName:       "HDFC",
		CardType:       "Infinia",
		BaseRewardRate: decimal.NewFromInt(5),
		RewardType:     models.RewardPoints,
		PointValueINR:  decimal.NewFromInt(1),
		IsActive:       true,
	}

	rr := doJSON(t, r, "POST", "/cards", card)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, r, "GET", "/users/"+userID+"/cards", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var cards []models.Card
	if err := json.Unmarshal(rr.Body.Bytes(), &cards); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(cards) != 1 || cards[0].ID != card.ID {
		t.Errorf("expected the created card back, got %+v", cards)
	}
}

func TestCardLifecycle(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)
	cardID := uuid.New().String()

	card := models.Card{
		ID:             cardID,
		UserID:         uuid.New().String(),
		BankName:       "HDFC",
		CardType:       "Infinia",
		BaseRewardRate: decimal.NewFromInt(5),
		RewardType:     models.RewardPoints,
		PointValueINR:  decimal.NewFromInt(1),
		IsActive:       true,
	}
	if rr := doJSON(t, r, "POST", "/cards", card); rr.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", rr.Code)
	}

	rr := doJSON(t, r, "GET", "/cards/"+cardID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d: %s", rr.Code, rr.Body.String())
	}

	card.BankName = "ICICI"
	rr = doJSON(t, r, "PUT", "/cards/"+cardID, card)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on update, got %d: %s", rr.Code, rr.Body.String())
	}

	var updated models.Card
	if err := json.Unmarshal(rr.Body.Bytes(), &updated); err != nil {
		t.Fatalf("failed to parse update response: %v", err)
	}
	if updated.BankName != "ICICI" {
		t.Errorf("expected updated bank name, got %q", updated.BankName)
	}

	rr = doJSON(t, r, "DELETE", "/cards/"+cardID, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on delete, got %d", rr.Code)
	}

	rr = doJSON(t, r, "GET", "/cards/"+cardID, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rr.Code)
	}
}

func TestUpdateCardNotFound(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	card := models.Card{
		ID:             uuid.New().String(),
		UserID:         uuid.New().String(),
		BankName:       "HDFC",
		CardType:       "Infinia",
		BaseRewardRate: decimal.NewFromInt(5),
		RewardType:     models.RewardPoints,
		PointValueINR:  decimal.NewFromInt(1),
		IsActive:       true,
	}
	rr := doJSON(t, r, "PUT", "/cards/"+card.ID, card)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 updating an unknown card, got %d", rr.Code)
	}
}

func TestDeleteCardNotFound(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	rr := doJSON(t, r, "DELETE", "/cards/"+uuid.New().String(), nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 deleting an unknown card, got %d", rr.Code)
	}
}

func TestGetUserCardsEmpty(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	rr := doJSON(t, r, "GET", "/users/"+uuid.New().String()+"/cards", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("expected empty JSON array, got %s", body)
	}
}

func TestRankDealsEndpoint(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)
	userID := uuid.New().String()

	card := models.Card{
		ID:             uuid.New().String(),
		UserID:         userID,
		BankName:       "HDFC",
		CardType:       "Infinia",
		BaseRewardRate: decimal.NewFromInt(5),
		RewardType:     models.RewardPoints,
		PointValueINR:  decimal.NewFromInt(1),
		IsActive:       true,
	}
	if rr := doJSON(t, r, "POST", "/cards", card); rr.Code != http.StatusCreated {
		t.Fatalf("card setup failed: %d", rr.Code)
	}

	rr := doJSON(t, r, "POST", "/users/"+userID+"/rank-deals", models.RankDealsRequest{
		DealID:        "deal-1",
		MerchantName:  "amazon",
		Category:      "electronics",
		OriginalPrice: decimal.NewFromInt(1000),
		DealDiscount:  decimal.NewFromInt(100),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp models.DealRankingResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Rankings) != 1 {
		t.Errorf("expected 1 ranking, got %d", len(resp.Rankings))
	}
}

func TestRankOffersEndpoint(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)
	dealID := uuid.New().String()

	deal := stackDeal(dealID, models.DealTypeCashback, "10")
	price := decimal.NewFromInt(1000)
	deal.Merchant = "amazon"
	deal.Category = "electronics"
	deal.OriginalPrice = &price
	if rr := doJSON(t, r, "POST", "/deals", deal); rr.Code != http.StatusCreated {
		t.Fatalf("deal setup failed: %d", rr.Code)
	}

	rr := doJSON(t, r, "POST", "/offers/rank", models.OfferRankingRequest{
		UserID:  uuid.New().String(),
		DealIDs: []string{dealID},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp models.OfferRankingResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.TotalCount != 1 {
		t.Errorf("expected 1 ranked offer, got %d", resp.TotalCount)
	}
	if resp.RankedOffers[0].RankingScore <= 0 {
		t.Errorf("expected positive ranking score, got %v", resp.RankedOffers[0].RankingScore)
	}
}

func TestRankOffersRequiresUser(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)

	rr := doJSON(t, r, "POST", "/offers/rank", models.OfferRankingRequest{
		DealIDs: []string{"d1"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without user_id, got %d", rr.Code)
	}
}

func TestPreferencesAndActivityEndpoints(t *testing.T) {
	h := setupTestHandler(t)
	r := setupRouter(h)
	userID := uuid.New().String()

	prefs := models.DefaultPreferences(userID)
	prefs.FavoriteCategories = []string{"electronics"}
	rr := doJSON(t, r, "PUT", "/users/"+userID+"/preferences", prefs)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, r, "POST", "/users/"+userID+"/activity", RecordActivityRequest{
		Purchases: []models.Purchase{
			{Merchant: "amazon", Category: "electronics", Amount: decimal.NewFromInt(900), Currency: "INR"},
		},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
}
