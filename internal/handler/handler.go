package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dealstack-api/internal/models"
	"dealstack-api/internal/service"
	"dealstack-api/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	maxBodySize int64
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 10 << 20, // 10MB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return NewHandlerWithOptions(svc, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	return &Handler{
		service:     svc,
		maxBodySize: opts.MaxBodySize,
	}
}

// OptimizeStack handles POST /stack/optimize
func (h *Handler) OptimizeStack(w http.ResponseWriter, r *http.Request) {
	var req models.StackDealsRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Merchant = validation.SanitizeString(req.Merchant)

	result, err := h.service.OptimizeStack(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// ValidateStack handles POST /stack/validate
func (h *Handler) ValidateStack(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateStackRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Merchant = validation.SanitizeString(req.Merchant)

	resp, err := h.service.ValidateStack(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// CreateDeal handles POST /deals
func (h *Handler) CreateDeal(w http.ResponseWriter, r *http.Request) {
	var deal models.Deal
	if !h.decode(w, r, &deal) {
		return
	}

	deal.ID = validation.SanitizeString(deal.ID)
	deal.Title = validation.SanitizeString(deal.Title)
	deal.Platform = validation.SanitizeString(deal.Platform)
	deal.Merchant = validation.SanitizeString(deal.Merchant)

	if err := h.service.CreateDeal(r.Context(), deal); err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, deal)
}

// GetDeal handles GET /deals/{deal_id}
func (h *Handler) GetDeal(w http.ResponseWriter, r *http.Request) {
	dealID := validation.SanitizeString(chi.URLParam(r, "deal_id"))
	if dealID == "" {
		h.respondError(w, http.StatusBadRequest, "deal_id is required")
		return
	}

	deal, err := h.service.GetDeal(r.Context(), dealID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, deal)
}

// CreateCard handles POST /cards
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var card models.Card
	if !h.decode(w, r, &card) {
		return
	}

	card.ID = validation.SanitizeString(card.ID)
	card.UserID = validation.SanitizeString(card.UserID)
	card.BankName = validation.SanitizeString(card.BankName)
	card.CardType = validation.SanitizeString(card.CardType)

	if err := h.service.CreateCard(r.Context(), card); err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, card)
}

// GetCard handles GET /cards/{card_id}
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	cardID := validation.SanitizeString(chi.URLParam(r, "card_id"))
	if cardID == "" {
		h.respondError(w, http.StatusBadRequest, "card_id is required")
		return
	}

	card, err := h.service.GetCard(r.Context(), cardID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, card)
}

// UpdateCard handles PUT /cards/{card_id}
func (h *Handler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	cardID := validation.SanitizeString(chi.URLParam(r, "card_id"))
	if cardID == "" {
		h.respondError(w, http.StatusBadRequest, "card_id is required")
		return
	}

	var card models.Card
	if !h.decode(w, r, &card) {
		return
	}
	card.ID = cardID
	card.UserID = validation.SanitizeString(card.UserID)
	card.BankName = validation.SanitizeString(card.BankName)
	card.CardType = validation.SanitizeString(card.CardType)

	if err := h.service.UpdateCard(r.Context(), card); err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, card)
}

// DeleteCard handles DELETE /cards/{card_id}
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	cardID := validation.SanitizeString(chi.URLParam(r, "card_id"))
	if cardID == "" {
		h.respondError(w, http.StatusBadRequest, "card_id is required")
		return
	}

	if err := h.service.DeleteCard(r.Context(), cardID); err != nil {
		h.respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetUserCards handles GET /users/{user_id}/cards
func (h *Handler) GetUserCards(w http.ResponseWriter, r *http.Request) {
	userID := validation.SanitizeString(chi.URLParam(r, "user_id"))
	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	cards, err := h.service.GetUserCards(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if cards == nil {
		cards = []models.Card{}
	}

	h.respondJSON(w, http.StatusOK, cards)
}

// RankDeals handles POST /users/{user_id}/rank-deals
func (h *Handler) RankDeals(w http.ResponseWriter, r *http.Request) {
	userID := validation.SanitizeString(chi.URLParam(r, "user_id"))

	var req models.RankDealsRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.DealID = validation.SanitizeString(req.DealID)
	req.MerchantName = validation.SanitizeString(req.MerchantName)
	req.Category = validation.SanitizeString(req.Category)

	resp, err := h.service.RankDealsForCards(r.Context(), userID, req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// RankOffers handles POST /offers/rank
func (h *Handler) RankOffers(w http.ResponseWriter, r *http.Request) {
	var req models.OfferRankingRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.UserID = validation.SanitizeString(req.UserID)
	for i := range req.DealIDs {
		req.DealIDs[i] = validation.SanitizeString(req.DealIDs[i])
	}

	resp, err := h.service.RankOffers(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// UpdatePreferences handles PUT /users/{user_id}/preferences
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID := validation.SanitizeString(chi.URLParam(r, "user_id"))

	var prefs models.UserPreferences
	if !h.decode(w, r, &prefs) {
		return
	}
	prefs.UserID = userID

	if err := h.service.UpdatePreferences(r.Context(), prefs); err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, prefs)
}

// RecordActivityRequest is the payload for activity ingestion.
type RecordActivityRequest struct {
	Purchases []models.Purchase      `json:"purchases"`
	Browsing  []models.BrowsingEvent `json:"browsing"`
}

// RecordActivity handles POST /users/{user_id}/activity
func (h *Handler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	userID := validation.SanitizeString(chi.URLParam(r, "user_id"))

	var req RecordActivityRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.RecordActivity(r.Context(), userID, req.Purchases, req.Browsing); err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]int{
		"purchases": len(req.Purchases),
		"browsing":  len(req.Browsing),
	})
}

// decode reads a size-limited JSON body into dest, writing the error
// response itself when decoding fails.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return false
	}
	return true
}

// respondServiceError maps service errors to HTTP status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var verr *validation.ValidationError
	switch {
	case errors.As(err, &verr):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sql.ErrNoRows):
		h.respondError(w, http.StatusNotFound, "not found")
	default:
		h.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
