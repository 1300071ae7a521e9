package events

import (
	"context"
	"sync"
	"time"

	"dealstack-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventDealCreated is emitted when a catalog deal is created or updated
	EventDealCreated EventType = "deal.created"
	// EventCardCreated is emitted when a card is added to the vault
	EventCardCreated EventType = "card.created"
	// EventStackOptimized is emitted after a stack optimization run
	EventStackOptimized EventType = "stack.optimized"
	// EventStackValidated is emitted after a caller stack is validated
	EventStackValidated EventType = "stack.validated"
	// EventDealsRanked is emitted after per-card benefit ranking
	EventDealsRanked EventType = "deals.ranked"
	// EventOffersRanked is emitted after a personalized ranking run
	EventOffersRanked EventType = "offers.ranked"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// StackOptimizedData contains data for stack optimization events.
type StackOptimizedData struct {
	Merchant string
	Result   models.StackedDealResult
}

// StackValidatedData contains data for stack validation events.
type StackValidatedData struct {
	Merchant string
	Valid    bool
	Error    string
}

// DealsRankedData contains data for per-card ranking events.
type DealsRankedData struct {
	UserID    string
	DealID    string
	CardsUsed int
}

// OffersRankedData contains data for personalized ranking events.
type OffersRankedData struct {
	UserID   string
	Ranked   int
	RankedAt time.Time
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	if !m.enabled {
		return
	}

	m.mu.RLock()
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// Execute handlers asynchronously to avoid blocking
	for _, handler := range handlers {
		go func(h Handler) {
			if err := h(ctx, event); err != nil {
				// In production, you might want to log this or send to error tracking
				_ = err
			}
		}(handler)
	}
}

// PublishStackOptimized publishes a stack optimization event.
func (m *Manager) PublishStackOptimized(ctx context.Context, merchant string, result models.StackedDealResult) {
	m.Publish(ctx, EventStackOptimized, StackOptimizedData{
		Merchant: merchant,
		Result:   result,
	})
}

// PublishStackValidated publishes a stack validation event.
func (m *Manager) PublishStackValidated(ctx context.Context, merchant string, resp models.ValidateStackResponse) {
	m.Publish(ctx, EventStackValidated, StackValidatedData{
		Merchant: merchant,
		Valid:    resp.Valid,
		Error:    resp.Error,
	})
}

// PublishDealsRanked publishes a per-card ranking event.
func (m *Manager) PublishDealsRanked(ctx context.Context, userID, dealID string, cardsUsed int) {
	m.Publish(ctx, EventDealsRanked, DealsRankedData{
		UserID:    userID,
		DealID:    dealID,
		CardsUsed: cardsUsed,
	})
}

// PublishOffersRanked publishes a personalized ranking event.
func (m *Manager) PublishOffersRanked(ctx context.Context, userID string, ranked int) {
	m.Publish(ctx, EventOffersRanked, OffersRankedData{
		UserID:   userID,
		Ranked:   ranked,
		RankedAt: time.Now(),
	})
}

// Shutdown shuts down the event manager.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
}
