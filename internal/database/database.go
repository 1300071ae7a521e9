package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"dealstack-api/internal/models"
)

// DB wraps the database connection and provides methods for data access.
// The stacking/ranking core never touches it; it is the read-only source
// of deals, cards and user profiles feeding the core.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS deals (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			deal_type TEXT NOT NULL,
			value TEXT NOT NULL,
			value_type TEXT NOT NULL,
			code TEXT,
			min_purchase TEXT,
			max_discount TEXT,
			platform TEXT NOT NULL,
			confidence REAL NOT NULL,
			stackable INTEGER NOT NULL,
			terms TEXT NOT NULL,
			priority INTEGER NOT NULL,
			merchant TEXT,
			category TEXT,
			original_price TEXT,
			cashback_rate TEXT,
			cashback_speed TEXT,
			valid_until TEXT,
			usage_count INTEGER NOT NULL DEFAULT 0,
			success_rate TEXT,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS cards (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			bank_name TEXT NOT NULL,
			card_type TEXT NOT NULL,
			base_reward_rate TEXT NOT NULL,
			reward_type TEXT NOT NULL,
			point_value_inr TEXT NOT NULL,
			category_rewards TEXT NOT NULL,
			bank_offers TEXT NOT NULL,
			milestone_config TEXT NOT NULL,
			current_points INTEGER NOT NULL,
			is_active INTEGER NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS user_preferences (
			user_id TEXT PRIMARY KEY,
			preferences TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS purchases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			merchant TEXT NOT NULL,
			category TEXT NOT NULL,
			amount TEXT NOT NULL,
			currency TEXT NOT NULL,
			timestamp TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS browsing_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			category TEXT NOT NULL,
			merchant TEXT,
			timestamp TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_user_id ON cards(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_user_id ON purchases(user_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_browsing_user_id ON browsing_events(user_id, timestamp)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// UpsertDeal creates or updates a catalog deal.
func (db *DB) UpsertDeal(deal models.Deal) error {
	terms, err := json.Marshal(deal.Terms)
	if err != nil {
		return fmt.Errorf("failed to serialize terms: %w", err)
	}

	query := `INSERT INTO deals (
		id, title, deal_type, value, value_type, code, min_purchase,
		max_discount, platform, confidence, stackable, terms, priority,
		merchant, category, original_price, cashback_rate, cashback_speed,
		valid_until, usage_count, success_rate, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		deal_type = excluded.deal_type,
		value = excluded.value,
		value_type = excluded.value_type,
		code = excluded.code,
		min_purchase = excluded.min_purchase,
		max_discount = excluded.max_discount,
		platform = excluded.platform,
		confidence = excluded.confidence,
		stackable = excluded.stackable,
		terms = excluded.terms,
		priority = excluded.priority,
		merchant = excluded.merchant,
		category = excluded.category,
		original_price = excluded.original_price,
		cashback_rate = excluded.cashback_rate,
		cashback_speed = excluded.cashback_speed,
		valid_until = excluded.valid_until,
		usage_count = excluded.usage_count,
		success_rate = excluded.success_rate,
		updated_at = excluded.updated_at`

	_, err = db.conn.Exec(
		query,
		deal.ID,
		deal.Title,
		string(deal.Type),
		deal.Value.String(),
		string(deal.ValueType),
		nullString(deal.Code),
		nullDecimal(deal.MinPurchase),
		nullDecimal(deal.MaxDiscount),
		deal.Platform,
		deal.Confidence,
		deal.Stackable,
		string(terms),
		deal.Priority,
		nullString(deal.Merchant),
		nullString(deal.Category),
		nullDecimal(deal.OriginalPrice),
		nullDecimal(deal.CashbackRate),
		nullString(string(deal.CashbackSpeed)),
		nullTime(deal.ValidUntil),
		deal.UsageCount,
		nullDecimal(deal.SuccessRate),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert deal: %w", err)
	}

	return nil
}

// GetDeal returns one deal, or sql.ErrNoRows when absent.
func (db *DB) GetDeal(id string) (models.Deal, error) {
	row := db.conn.QueryRow(`SELECT id, title, deal_type, value, value_type,
		code, min_purchase, max_discount, platform, confidence, stackable,
		terms, priority, merchant, category, original_price, cashback_rate,
		cashback_speed, valid_until, usage_count, success_rate
		FROM deals WHERE id = ?`, id)
	return scanDeal(row)
}

// GetDealsByIDs returns deals in the order the ids were given, skipping
// unknown ids. The input order is the catalog order the ranking pipeline
// preserves on score ties.
func (db *DB) GetDealsByIDs(ids []string) ([]models.Deal, error) {
	deals := make([]models.Deal, 0, len(ids))
	for _, id := range ids {
		deal, err := db.GetDeal(id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load deal %s: %w", id, err)
		}
		deals = append(deals, deal)
	}
	return deals, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDeal(row rowScanner) (models.Deal, error) {
	var deal models.Deal
	var dealType, valueType, valueStr, termsJSON string
	var code, minPurchase, maxDiscount, merchant, category sql.NullString
	var originalPrice, cashbackRate, cashbackSpeed, validUntil, successRate sql.NullString

	err := row.Scan(
		&deal.ID,
		&deal.Title,
		&dealType,
		&valueStr,
		&valueType,
		&code,
		&minPurchase,
		&maxDiscount,
		&deal.Platform,
		&deal.Confidence,
		&deal.Stackable,
		&termsJSON,
		&deal.Priority,
		&merchant,
		&category,
		&originalPrice,
		&cashbackRate,
		&cashbackSpeed,
		&validUntil,
		&deal.UsageCount,
		&successRate,
	)
	if err != nil {
		return models.Deal{}, err
	}

	deal.Type = models.DealType(dealType)
	deal.ValueType = models.ValueType(valueType)
	deal.Code = code.String
	deal.Merchant = merchant.String
	deal.Category = category.String
	deal.CashbackSpeed = models.CashbackSpeed(cashbackSpeed.String)

	if deal.Value, err = decimal.NewFromString(valueStr); err != nil {
		return models.Deal{}, fmt.Errorf("failed to parse deal value: %w", err)
	}
	if deal.MinPurchase, err = parseDecimal(minPurchase); err != nil {
		return models.Deal{}, fmt.Errorf("failed to parse min_purchase: %w", err)
	}
	if deal.MaxDiscount, err = parseDecimal(maxDiscount); err != nil {
		return models.Deal{}, fmt.Errorf("failed to parse max_discount: %w", err)
	}
	if deal.OriginalPrice, err = parseDecimal(originalPrice); err != nil {
		return models.Deal{}, fmt.Errorf("failed to parse original_price: %w", err)
	}
	if deal.CashbackRate, err = parseDecimal(cashbackRate); err != nil {
		return models.Deal{}, fmt.Errorf("failed to parse cashback_rate: %w", err)
	}
	if deal.SuccessRate, err = parseDecimal(successRate); err != nil {
		return models.Deal{}, fmt.Errorf("failed to parse success_rate: %w", err)
	}

	if err := json.Unmarshal([]byte(termsJSON), &deal.Terms); err != nil {
		return models.Deal{}, fmt.Errorf("failed to parse terms: %w", err)
	}

	if validUntil.Valid {
		t, err := time.Parse(time.RFC3339, validUntil.String)
		if err != nil {
			return models.Deal{}, fmt.Errorf("failed to parse valid_until: %w", err)
		}
		deal.ValidUntil = &t
	}

	return deal, nil
}

// UpsertCard creates or updates a vault card. The typed reward maps and
// milestone lists are serialized as JSON columns and validated again on
// read, so dynamic configuration is checked once at this boundary.
func (db *DB) UpsertCard(card models.Card) error {
	categoryRewards, err := json.Marshal(card.CategoryRewards)
	if err != nil {
		return fmt.Errorf("failed to serialize category_rewards: %w", err)
	}
	bankOffers, err := json.Marshal(card.BankOffers)
	if err != nil {
		return fmt.Errorf("failed to serialize bank_offers: %w", err)
	}
	milestones, err := json.Marshal(card.MilestoneConfig)
	if err != nil {
		return fmt.Errorf("failed to serialize milestone_config: %w", err)
	}

	query := `INSERT INTO cards (
		id, user_id, bank_name, card_type, base_reward_rate, reward_type,
		point_value_inr, category_rewards, bank_offers, milestone_config,
		current_points, is_active, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		bank_name = excluded.bank_name,
		card_type = excluded.card_type,
		base_reward_rate = excluded.base_reward_rate,
		reward_type = excluded.reward_type,
		point_value_inr = excluded.point_value_inr,
		category_rewards = excluded.category_rewards,
		bank_offers = excluded.bank_offers,
		milestone_config = excluded.milestone_config,
		current_points = excluded.current_points,
		is_active = excluded.is_active,
		updated_at = excluded.updated_at`

	_, err = db.conn.Exec(
		query,
		card.ID,
		card.UserID,
		card.BankName,
		card.CardType,
		card.BaseRewardRate.String(),
		string(card.RewardType),
		card.PointValueINR.String(),
		string(categoryRewards),
		string(bankOffers),
		string(milestones),
		card.CurrentPoints,
		card.IsActive,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert card: %w", err)
	}

	return nil
}

// GetCard returns one card, or sql.ErrNoRows when absent.
func (db *DB) GetCard(id string) (models.Card, error) {
	row := db.conn.QueryRow(`SELECT id, user_id, bank_name, card_type,
		base_reward_rate, reward_type, point_value_inr, category_rewards,
		bank_offers, milestone_config, current_points, is_active
		FROM cards WHERE id = ?`, id)
	return scanCard(row)
}

// GetActiveCards returns the user's active cards ordered by id.
func (db *DB) GetActiveCards(userID string) ([]models.Card, error) {
	rows, err := db.conn.Query(`SELECT id, user_id, bank_name, card_type,
		base_reward_rate, reward_type, point_value_inr, category_rewards,
		bank_offers, milestone_config, current_points, is_active
		FROM cards WHERE user_id = ? AND is_active = 1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []models.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cards: %w", err)
	}

	return cards, nil
}

func scanCard(row rowScanner) (models.Card, error) {
	var card models.Card
	var rewardType, baseRate, pointValue string
	var categoryRewards, bankOffers, milestones string

	err := row.Scan(
		&card.ID,
		&card.UserID,
		&card.BankName,
		&card.CardType,
		&baseRate,
		&rewardType,
		&pointValue,
		&categoryRewards,
		&bankOffers,
		&milestones,
		&card.CurrentPoints,
		&card.IsActive,
	)
	if err == sql.ErrNoRows {
		return models.Card{}, err
	}
	if err != nil {
		return models.Card{}, fmt.Errorf("failed to scan card: %w", err)
	}

	card.RewardType = models.RewardType(rewardType)
	if card.BaseRewardRate, err = decimal.NewFromString(baseRate); err != nil {
		return models.Card{}, fmt.Errorf("failed to parse base_reward_rate: %w", err)
	}
	if card.PointValueINR, err = decimal.NewFromString(pointValue); err != nil {
		return models.Card{}, fmt.Errorf("failed to parse point_value_inr: %w", err)
	}
	if err := json.Unmarshal([]byte(categoryRewards), &card.CategoryRewards); err != nil {
		return models.Card{}, fmt.Errorf("failed to parse category_rewards: %w", err)
	}
	if err := json.Unmarshal([]byte(bankOffers), &card.BankOffers); err != nil {
		return models.Card{}, fmt.Errorf("failed to parse bank_offers: %w", err)
	}
	if err := json.Unmarshal([]byte(milestones), &card.MilestoneConfig); err != nil {
		return models.Card{}, fmt.Errorf("failed to parse milestone_config: %w", err)
	}

	return card, nil
}

// DeleteCard removes a card, returning sql.ErrNoRows when absent.
func (db *DB) DeleteCard(id string) error {
	res, err := db.conn.Exec(`DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// UpsertPreferences stores the user's personalization profile.
func (db *DB) UpsertPreferences(prefs models.UserPreferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to serialize preferences: %w", err)
	}

	_, err = db.conn.Exec(`INSERT INTO user_preferences (user_id, preferences, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			preferences = excluded.preferences,
			updated_at = excluded.updated_at`,
		prefs.UserID,
		string(data),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert preferences: %w", err)
	}

	return nil
}

// GetPreferences returns the stored profile, or ok=false when the user
// has none (callers then fall back to models.DefaultPreferences).
func (db *DB) GetPreferences(userID string) (models.UserPreferences, bool, error) {
	var data string
	err := db.conn.QueryRow(`SELECT preferences FROM user_preferences WHERE user_id = ?`, userID).Scan(&data)
	if err == sql.ErrNoRows {
		return models.UserPreferences{}, false, nil
	}
	if err != nil {
		return models.UserPreferences{}, false, fmt.Errorf("failed to query preferences: %w", err)
	}

	var prefs models.UserPreferences
	if err := json.Unmarshal([]byte(data), &prefs); err != nil {
		return models.UserPreferences{}, false, fmt.Errorf("failed to parse preferences: %w", err)
	}

	return prefs, true, nil
}

// InsertPurchases records purchases for activity-based ranking signals.
func (db *DB) InsertPurchases(userID string, purchases []models.Purchase) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO purchases (user_id, merchant, category, amount, currency, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range purchases {
		_, err := stmt.Exec(userID, p.Merchant, p.Category, p.Amount.String(), p.Currency, p.Timestamp.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to insert purchase: %w", err)
		}
	}

	return tx.Commit()
}

// InsertBrowsingEvents records browsing events for ranking signals.
func (db *DB) InsertBrowsingEvents(userID string, events []models.BrowsingEvent) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO browsing_events (user_id, category, merchant, timestamp)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		_, err := stmt.Exec(userID, e.Category, nullString(e.Merchant), e.Timestamp.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to insert browsing event: %w", err)
		}
	}

	return tx.Commit()
}

// GetUserActivity loads the user's most recent purchases and browsing
// events, newest first, capped at limit per list.
func (db *DB) GetUserActivity(userID string, limit int) (models.UserActivity, error) {
	activity := models.UserActivity{
		UserID:          userID,
		RecentPurchases: []models.Purchase{},
		BrowsingHistory: []models.BrowsingEvent{},
	}

	rows, err := db.conn.Query(`SELECT merchant, category, amount, currency, timestamp
		FROM purchases WHERE user_id = ? ORDER BY timestamp DESC LIMIT ?`, userID, limit)
	if err != nil {
		return activity, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Purchase
		var amount, ts string
		if err := rows.Scan(&p.Merchant, &p.Category, &amount, &p.Currency, &ts); err != nil {
			return activity, fmt.Errorf("failed to scan purchase: %w", err)
		}
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return activity, fmt.Errorf("failed to parse purchase amount: %w", err)
		}
		if p.Timestamp, err = time.Parse(time.RFC3339, ts); err != nil {
			return activity, fmt.Errorf("failed to parse purchase timestamp: %w", err)
		}
		activity.RecentPurchases = append(activity.RecentPurchases, p)
	}
	if err := rows.Err(); err != nil {
		return activity, fmt.Errorf("error iterating purchases: %w", err)
	}

	eventRows, err := db.conn.Query(`SELECT category, merchant, timestamp
		FROM browsing_events WHERE user_id = ? ORDER BY timestamp DESC LIMIT ?`, userID, limit)
	if err != nil {
		return activity, fmt.Errorf("failed to query browsing events: %w", err)
	}
	defer eventRows.Close()

	for eventRows.Next() {
		var e models.BrowsingEvent
		var merchant sql.NullString
		var ts string
		if err := eventRows.Scan(&e.Category, &merchant, &ts); err != nil {
			return activity, fmt.Errorf("failed to scan browsing event: %w", err)
		}
		e.Merchant = merchant.String
		if e.Timestamp, err = time.Parse(time.RFC3339, ts); err != nil {
			return activity, fmt.Errorf("failed to parse event timestamp: %w", err)
		}
		activity.BrowsingHistory = append(activity.BrowsingHistory, e)
	}
	if err := eventRows.Err(); err != nil {
		return activity, fmt.Errorf("error iterating browsing events: %w", err)
	}

	return activity, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
