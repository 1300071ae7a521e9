package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DealType classifies a discount instrument.
type DealType string

const (
	DealTypeCoupon      DealType = "coupon"
	DealTypeCashback    DealType = "cashback"
	DealTypeDiscount    DealType = "discount"
	DealTypeCardOffer   DealType = "card_offer"
	DealTypeWalletOffer DealType = "wallet_offer"
	DealTypeMembership  DealType = "membership"
	DealTypeReferral    DealType = "referral"
	DealTypeBundle      DealType = "bundle"
)

// ValueType says how a deal's value is interpreted against a price.
type ValueType string

const (
	ValuePercentage ValueType = "percentage"
	ValueFixed      ValueType = "fixed"
)

// CashbackSpeed is the settlement channel of a cashback deal.
type CashbackSpeed string

const (
	CashbackInstant      CashbackSpeed = "instant"
	CashbackWallet       CashbackSpeed = "wallet"
	CashbackBankTransfer CashbackSpeed = "bank_transfer"
)

// Deal is one discount instrument. The same value object feeds both the
// checkout-time stacking path and the browse-time ranking path.
type Deal struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Type        DealType         `json:"deal_type"`
	Value       decimal.Decimal  `json:"value"`
	ValueType   ValueType        `json:"value_type"`
	Code        string           `json:"code,omitempty"`
	MinPurchase *decimal.Decimal `json:"min_purchase,omitempty"`
	MaxDiscount *decimal.Decimal `json:"max_discount,omitempty"`
	Platform    string           `json:"platform"`
	Confidence  float64          `json:"confidence"`
	Stackable   bool             `json:"stackable"`
	Terms       []string         `json:"terms,omitempty"`
	Priority    int              `json:"priority"`

	// Catalog fields consumed by the ranking path.
	Merchant      string           `json:"merchant,omitempty"`
	Category      string           `json:"category,omitempty"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	CashbackRate  *decimal.Decimal `json:"cashback_rate,omitempty"`
	CashbackSpeed CashbackSpeed    `json:"cashback_speed,omitempty"`
	ValidUntil    *time.Time       `json:"valid_until,omitempty"`
	UsageCount    int              `json:"usage_count,omitempty"`
	SuccessRate   *decimal.Decimal `json:"success_rate,omitempty"`
}

// DiscountAmount is the deal's nominal discount against the given price,
// before any max_discount cap.
func (d Deal) DiscountAmount(price decimal.Decimal) decimal.Decimal {
	switch d.ValueType {
	case ValuePercentage:
		return price.Mul(d.Value).Div(decimal.NewFromInt(100))
	case ValueFixed:
		return d.Value
	}
	return decimal.Zero
}

// DaysUntilExpiry returns whole days from now until valid_until, or false
// when the deal has no expiry. The count is negative once the deal has
// expired.
func (d Deal) DaysUntilExpiry(now time.Time) (int, bool) {
	if d.ValidUntil == nil {
		return 0, false
	}
	return int(d.ValidUntil.Sub(now).Hours() / 24), true
}

// RewardType says whether a card accrues points or direct cashback.
type RewardType string

const (
	RewardPoints   RewardType = "points"
	RewardCashback RewardType = "cashback"
)

// BankOffer is a merchant-scoped discount attached to a card.
// Discount is a fraction of the purchase price (0.10 = 10%).
type BankOffer struct {
	Merchant string          `json:"merchant"`
	Discount decimal.Decimal `json:"discount"`
}

// Milestone is a points threshold unlocking a reward once reached.
type Milestone struct {
	Threshold   int             `json:"threshold"`
	RewardValue decimal.Decimal `json:"reward_value"`
}

// Card is a payment card from the vault. Category rewards, bank offers and
// milestones are typed lists validated once at the data boundary.
type Card struct {
	ID              string                     `json:"id"`
	UserID          string                     `json:"user_id"`
	BankName        string                     `json:"bank_name"`
	CardType        string                     `json:"card_type"`
	BaseRewardRate  decimal.Decimal            `json:"base_reward_rate"`
	RewardType      RewardType                 `json:"reward_type"`
	PointValueINR   decimal.Decimal            `json:"point_value_inr"`
	CategoryRewards map[string]decimal.Decimal `json:"category_rewards,omitempty"`
	BankOffers      []BankOffer                `json:"bank_offers,omitempty"`
	MilestoneConfig []Milestone                `json:"milestone_config,omitempty"`
	CurrentPoints   int                        `json:"current_points"`
	IsActive        bool                       `json:"is_active"`
}

// StackedDealResult is the output of stack optimization.
type StackedDealResult struct {
	Deals            []Deal          `json:"deals"`
	TotalSavings     decimal.Decimal `json:"total_savings"`
	FinalPrice       decimal.Decimal `json:"final_price"`
	OriginalPrice    decimal.Decimal `json:"original_price"`
	Confidence       float64         `json:"confidence"`
	ApplicationOrder []string        `json:"application_order"`
	Warnings         []string        `json:"warnings"`
	ProcessingTime   float64         `json:"processing_time"`
}

// StackDealsRequest asks for the savings-maximizing legal stack.
type StackDealsRequest struct {
	Deals     []Deal          `json:"deals"`
	BasePrice decimal.Decimal `json:"base_price"`
	Merchant  string          `json:"merchant"`
}

// ValidateStackRequest asks whether a caller-supplied ordered stack is legal.
type ValidateStackRequest struct {
	Deals     []Deal          `json:"deals"`
	BasePrice decimal.Decimal `json:"base_price"`
	Merchant  string          `json:"merchant"`
}

// ValidateStackResponse reports legality; totals are present only when valid.
type ValidateStackResponse struct {
	Valid        bool             `json:"valid"`
	TotalSavings *decimal.Decimal `json:"total_savings,omitempty"`
	FinalPrice   *decimal.Decimal `json:"final_price,omitempty"`
	Confidence   *float64         `json:"confidence,omitempty"`
	Warnings     []string         `json:"warnings"`
	Error        string           `json:"error,omitempty"`
}

// MilestoneProgress reports progress toward the next points threshold.
type MilestoneProgress struct {
	CurrentPoints       int             `json:"current_points"`
	PointsAfterPurchase int             `json:"points_after_purchase"`
	NextMilestone       int             `json:"next_milestone"`
	MilestoneValue      decimal.Decimal `json:"milestone_value"`
	PointsToMilestone   int             `json:"points_to_milestone"`
}

// CardDealAnalysis is the monetary benefit of one card for one deal context.
type CardDealAnalysis struct {
	CardID            string             `json:"card_id"`
	CardName          string             `json:"card_name"`
	BankName          string             `json:"bank_name"`
	BaseReward        decimal.Decimal    `json:"base_reward"`
	CategoryBonus     decimal.Decimal    `json:"category_bonus"`
	BankOfferDiscount decimal.Decimal    `json:"bank_offer_discount"`
	TotalBenefit      decimal.Decimal    `json:"total_benefit"`
	EffectivePrice    decimal.Decimal    `json:"effective_price"`
	TotalSavings      decimal.Decimal    `json:"total_savings"`
	SavingsPercentage decimal.Decimal    `json:"savings_percentage"`
	PointsEarned      int                `json:"points_earned"`
	PointsValueINR    decimal.Decimal    `json:"points_value_inr"`
	MilestoneProgress *MilestoneProgress `json:"milestone_progress,omitempty"`
	Score             decimal.Decimal    `json:"score"`
}

// RankDealsRequest asks for per-card benefit analysis of one deal context.
type RankDealsRequest struct {
	DealID        string          `json:"deal_id"`
	MerchantName  string          `json:"merchant_name"`
	Category      string          `json:"category"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	DealDiscount  decimal.Decimal `json:"deal_discount"`
}

// DealRankingResponse lists card analyses sorted by score, best first.
type DealRankingResponse struct {
	DealID   string             `json:"deal_id"`
	Rankings []CardDealAnalysis `json:"rankings"`
}

// RankingComponents are the eight normalized sub-scores behind a ranking.
type RankingComponents struct {
	NetSavingsScore          float64 `json:"net_savings_score"`
	CashbackRealizationScore float64 `json:"cashback_realization_score"`
	RewardPointsScore        float64 `json:"reward_points_score"`
	ThresholdProximityScore  float64 `json:"threshold_proximity_score"`
	PersonalPreferenceScore  float64 `json:"personal_preference_score"`
	UrgencyScore             float64 `json:"urgency_score"`
	PopularityScore          float64 `json:"popularity_score"`
	StackingPotentialScore   float64 `json:"stacking_potential_score"`
}

// PersonalizationData explains how a deal fits the user outside the score.
type PersonalizationData struct {
	UserCategoryAffinity       float64 `json:"user_category_affinity"`
	MerchantPreferenceScore    float64 `json:"merchant_preference_score"`
	PriceRangeMatch            float64 `json:"price_range_match"`
	PaymentMethodCompatibility float64 `json:"payment_method_compatibility"`
	GeographicRelevance        float64 `json:"geographic_relevance"`
}

// StackType is the closed taxonomy of stacking opportunities.
type StackType string

const (
	StackCouponPlusCashback  StackType = "coupon_plus_cashback"
	StackCardOfferPlusCoupon StackType = "card_offer_plus_coupon"
	StackBankOfferPlusWallet StackType = "bank_offer_plus_wallet"
	StackMultipleCoupons     StackType = "multiple_coupons"
	StackRewardPointsBonus   StackType = "reward_points_bonus"
)

// StackingOpportunity is a suggested combination with another offer class.
type StackingOpportunity struct {
	StackType   StackType `json:"stack_type"`
	Description string    `json:"description"`
}

// RankedOffer is a deal with its composite score and breakdown.
type RankedOffer struct {
	Deal                  Deal                  `json:"deal"`
	RankingScore          float64               `json:"ranking_score"`
	RankingComponents     RankingComponents     `json:"ranking_components"`
	PersonalizationData   PersonalizationData   `json:"personalization_data"`
	StackingOpportunities []StackingOpportunity `json:"stacking_opportunities"`
}

// SpendRange is a user's typical spend band.
type SpendRange struct {
	MinAmount decimal.Decimal `json:"min_amount"`
	MaxAmount decimal.Decimal `json:"max_amount"`
	Currency  string          `json:"currency"`
}

// NotificationPreferences are the user's alerting switches.
type NotificationPreferences struct {
	ThresholdAlerts bool `json:"threshold_alerts"`
	ExpiryReminders bool `json:"expiry_reminders"`
	NewOfferAlerts  bool `json:"new_offer_alerts"`
	PriceDropAlerts bool `json:"price_drop_alerts"`
}

// UserPreferences drive personalization during ranking.
type UserPreferences struct {
	UserID                  string                  `json:"user_id"`
	FavoriteCategories      []string                `json:"favorite_categories"`
	FavoriteMerchants       []string                `json:"favorite_merchants"`
	TypicalSpendRange       SpendRange              `json:"typical_spend_range"`
	PreferredCashbackTypes  []CashbackSpeed         `json:"preferred_cashback_types"`
	NotificationPreferences NotificationPreferences `json:"notification_preferences"`
}

// DefaultPreferences are used when no profile exists for the user:
// empty favorites, spend range 0-5000 INR, instant and wallet cashback
// preferred, all notifications enabled.
func DefaultPreferences(userID string) UserPreferences {
	return UserPreferences{
		UserID:             userID,
		FavoriteCategories: []string{},
		FavoriteMerchants:  []string{},
		TypicalSpendRange: SpendRange{
			MinAmount: decimal.Zero,
			MaxAmount: decimal.NewFromInt(5000),
			Currency:  "INR",
		},
		PreferredCashbackTypes: []CashbackSpeed{CashbackInstant, CashbackWallet},
		NotificationPreferences: NotificationPreferences{
			ThresholdAlerts: true,
			ExpiryReminders: true,
			NewOfferAlerts:  true,
			PriceDropAlerts: true,
		},
	}
}

// Purchase is one historical purchase of the user.
type Purchase struct {
	Merchant  string          `json:"merchant"`
	Category  string          `json:"category"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Timestamp time.Time       `json:"timestamp"`
}

// BrowsingEvent is one catalog browsing event of the user.
type BrowsingEvent struct {
	Category  string    `json:"category"`
	Merchant  string    `json:"merchant,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// UserActivity is the user's recent behavior consumed by ranking.
type UserActivity struct {
	UserID          string          `json:"user_id"`
	RecentPurchases []Purchase      `json:"recent_purchases"`
	BrowsingHistory []BrowsingEvent `json:"browsing_history"`
}

// OfferRankingRequest asks for a ranked view of candidate deals.
type OfferRankingRequest struct {
	UserID     string   `json:"user_id"`
	DealIDs    []string `json:"deals"`
	MaxResults int      `json:"max_results,omitempty"`
}

// OfferRankingResponse is the ranked result set.
type OfferRankingResponse struct {
	RankedOffers           []RankedOffer `json:"ranked_offers"`
	TotalCount             int           `json:"total_count"`
	PersonalizationApplied bool          `json:"personalization_applied"`
	RankingTimestamp       time.Time     `json:"ranking_timestamp"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
