package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"dealstack-api/internal/cache"
	"dealstack-api/internal/cardbenefit"
	"dealstack-api/internal/database"
	"dealstack-api/internal/events"
	"dealstack-api/internal/features"
	"dealstack-api/internal/models"
	"dealstack-api/internal/ranking"
	"dealstack-api/internal/stacking"
	"dealstack-api/internal/tracing"
	"dealstack-api/internal/validation"
)

const (
	activityLimit   = 50
	rankingCacheTTL = 24 * time.Hour
)

// Service provides business logic for the deal stacking and ranking API.
type Service struct {
	db       *database.DB
	cache    cache.Cache
	events   *events.Manager
	features *features.Manager
	weights  ranking.Weights
	logger   *zap.Logger
}

// NewService creates a new service instance.
func NewService(db *database.DB, c cache.Cache, ev *events.Manager, ff *features.Manager, weights ranking.Weights, logger *zap.Logger) (*Service, error) {
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ranking weights: %w", err)
	}

	return &Service{
		db:       db,
		cache:    c,
		events:   ev,
		features: ff,
		weights:  weights,
		logger:   logger,
	}, nil
}

// CreateDeal validates and stores a catalog deal.
func (s *Service) CreateDeal(ctx context.Context, deal models.Deal) error {
	if err := validation.ValidateDeal(deal); err != nil {
		return err
	}

	if err := s.db.UpsertDeal(deal); err != nil {
		return err
	}

	s.events.Publish(ctx, events.EventDealCreated, deal)
	return nil
}

// GetDeal returns one catalog deal.
func (s *Service) GetDeal(ctx context.Context, id string) (models.Deal, error) {
	return s.db.GetDeal(id)
}

// CreateCard validates and stores a vault card.
func (s *Service) CreateCard(ctx context.Context, card models.Card) error {
	if err := validation.ValidateCard(card); err != nil {
		return err
	}

	if err := s.db.UpsertCard(card); err != nil {
		return err
	}

	s.events.Publish(ctx, events.EventCardCreated, card)
	return nil
}

// GetCard returns one vault card.
func (s *Service) GetCard(ctx context.Context, id string) (models.Card, error) {
	return s.db.GetCard(id)
}

// UpdateCard validates and overwrites an existing vault card.
func (s *Service) UpdateCard(ctx context.Context, card models.Card) error {
	if err := validation.ValidateCard(card); err != nil {
		return err
	}

	// Updating an unknown card is a 404, not an implicit create.
	if _, err := s.db.GetCard(card.ID); err != nil {
		return err
	}

	return s.db.UpsertCard(card)
}

// DeleteCard removes a card from the vault.
func (s *Service) DeleteCard(ctx context.Context, id string) error {
	return s.db.DeleteCard(id)
}

// GetUserCards returns the user's active cards.
func (s *Service) GetUserCards(ctx context.Context, userID string) ([]models.Card, error) {
	return s.db.GetActiveCards(userID)
}

// UpdatePreferences stores the user's personalization profile.
func (s *Service) UpdatePreferences(ctx context.Context, prefs models.UserPreferences) error {
	if prefs.UserID == "" {
		return &validation.ValidationError{Field: "user_id", Message: "is required"}
	}
	return s.db.UpsertPreferences(prefs)
}

// RecordActivity ingests purchases and browsing events for ranking signals.
func (s *Service) RecordActivity(ctx context.Context, userID string, purchases []models.Purchase, browsing []models.BrowsingEvent) error {
	if userID == "" {
		return &validation.ValidationError{Field: "user_id", Message: "is required"}
	}

	if len(purchases) > 0 {
		if err := s.db.InsertPurchases(userID, purchases); err != nil {
			return err
		}
	}
	if len(browsing) > 0 {
		if err := s.db.InsertBrowsingEvents(userID, browsing); err != nil {
			return err
		}
	}
	return nil
}

// OptimizeStack finds the savings-maximizing legal stack for the request.
func (s *Service) OptimizeStack(ctx context.Context, req models.StackDealsRequest) (models.StackedDealResult, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "service.OptimizeStack")
	defer span.End()

	if err := validation.ValidateStackRequest(req.Deals, req.BasePrice); err != nil {
		return models.StackedDealResult{}, err
	}

	result := stacking.Optimize(req.Deals, req.BasePrice, req.Merchant)

	s.logger.Debug("stack optimized",
		zap.String("merchant", req.Merchant),
		zap.Int("candidates", len(req.Deals)),
		zap.Int("applied", len(result.Deals)),
		zap.String("total_savings", result.TotalSavings.String()),
	)

	s.events.PublishStackOptimized(ctx, req.Merchant, result)
	return result, nil
}

// ValidateStack checks a caller-supplied stack for legality.
func (s *Service) ValidateStack(ctx context.Context, req models.ValidateStackRequest) (models.ValidateStackResponse, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "service.ValidateStack")
	defer span.End()

	if err := validation.ValidateStackRequest(req.Deals, req.BasePrice); err != nil {
		return models.ValidateStackResponse{}, err
	}

	resp := stacking.Validate(req.Deals, req.BasePrice, req.Merchant)

	s.events.PublishStackValidated(ctx, req.Merchant, resp)
	return resp, nil
}

// RankDealsForCards analyzes one deal context against every active card
// of the user and returns the analyses sorted by score, best first.
func (s *Service) RankDealsForCards(ctx context.Context, userID string, req models.RankDealsRequest) (models.DealRankingResponse, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "service.RankDealsForCards")
	defer span.End()

	if userID == "" {
		return models.DealRankingResponse{}, &validation.ValidationError{Field: "user_id", Message: "is required"}
	}
	if err := validation.ValidateRankDealsRequest(req); err != nil {
		return models.DealRankingResponse{}, err
	}

	cards, err := s.db.GetActiveCards(userID)
	if err != nil {
		return models.DealRankingResponse{}, fmt.Errorf("failed to load cards: %w", err)
	}

	rankings := make([]models.CardDealAnalysis, 0, len(cards))
	for _, card := range cards {
		analysis, err := cardbenefit.Analyze(card, req.MerchantName, req.Category, req.OriginalPrice, req.DealDiscount)
		if err != nil {
			return models.DealRankingResponse{}, err
		}
		rankings = append(rankings, analysis)
	}

	// Cards arrive ordered by id; a stable sort keeps that order on ties.
	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].Score.GreaterThan(rankings[j].Score)
	})

	s.events.PublishDealsRanked(ctx, userID, req.DealID, len(cards))

	return models.DealRankingResponse{
		DealID:   req.DealID,
		Rankings: rankings,
	}, nil
}

// RankOffers runs the personalized ranking pipeline over the requested
// candidate deals.
func (s *Service) RankOffers(ctx context.Context, req models.OfferRankingRequest) (models.OfferRankingResponse, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "service.RankOffers")
	defer span.End()

	if err := validation.ValidateOfferRankingRequest(req); err != nil {
		return models.OfferRankingResponse{}, err
	}

	cacheKey := cache.RankingKey(req.UserID, req.DealIDs, req.MaxResults)
	if s.features.IsEnabled(features.FeatureCacheEnabled) {
		var cached models.OfferRankingResponse
		if err := cache.GetJSON(ctx, s.cache, cacheKey, &cached); err == nil {
			s.logger.Debug("ranking served from cache", zap.String("user_id", req.UserID))
			return cached, nil
		}
	}

	deals, err := s.db.GetDealsByIDs(req.DealIDs)
	if err != nil {
		return models.OfferRankingResponse{}, fmt.Errorf("failed to load deals: %w", err)
	}

	prefs := models.DefaultPreferences(req.UserID)
	activity := models.UserActivity{UserID: req.UserID}
	personalized := false

	if s.features.IsEnabled(features.FeaturePersonalization) {
		stored, found, err := s.db.GetPreferences(req.UserID)
		if err != nil {
			return models.OfferRankingResponse{}, fmt.Errorf("failed to load preferences: %w", err)
		}
		if found {
			prefs = stored
			personalized = true
		}

		activity, err = s.db.GetUserActivity(req.UserID, activityLimit)
		if err != nil {
			return models.OfferRankingResponse{}, fmt.Errorf("failed to load activity: %w", err)
		}
	}

	var card *models.Card
	cards, err := s.db.GetActiveCards(req.UserID)
	if err != nil {
		return models.OfferRankingResponse{}, fmt.Errorf("failed to load cards: %w", err)
	}
	if len(cards) > 0 {
		card = &cards[0]
	}

	offers := ranking.Rank(deals, prefs, activity, card, s.weights, req.MaxResults, time.Now().UTC())

	if !s.features.IsEnabled(features.FeatureStackingSuggestions) {
		for i := range offers {
			offers[i].StackingOpportunities = []models.StackingOpportunity{}
		}
	}

	resp := models.OfferRankingResponse{
		RankedOffers:           offers,
		TotalCount:             len(offers),
		PersonalizationApplied: personalized,
		RankingTimestamp:       time.Now().UTC(),
	}

	if s.features.IsEnabled(features.FeatureCacheEnabled) {
		if err := cache.SetJSON(ctx, s.cache, cacheKey, resp, rankingCacheTTL); err != nil {
			s.logger.Warn("failed to cache ranking", zap.Error(err))
		}
	}

	s.events.PublishOffersRanked(ctx, req.UserID, len(offers))
	return resp, nil
}
