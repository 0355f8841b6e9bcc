package models

import "time"

// Health status values for a quote's margin vs its target.
const (
	HealthGreen = "green"
	HealthAmber = "amber"
	HealthRed   = "red"
)

// Quote stores product references (ids, not snapshots) plus the cost
// parameters and the derived financials last computed from them. Derived
// fields are a cache: every mutating operation recomputes them from the
// current catalog in the same write.
type Quote struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	UserID          uint   `gorm:"not null;index" json:"user_id"`
	CustomerName    string `gorm:"not null" json:"customer_name"`
	CustomerAddress string `json:"customer_address"`

	// Ordered catalog product ids, stored as a JSON array.
	ProductIDs []int64 `gorm:"serializer:json;column:product_ids" json:"product_ids"`

	LaborHours         float64 `gorm:"not null" json:"labor_hours"`
	LaborCostPerHour   float64 `gorm:"not null" json:"labor_cost_per_hour"`
	FixedOverheads     float64 `gorm:"not null;default:0" json:"fixed_overheads"`
	TargetProfitMargin float64 `gorm:"not null;default:20" json:"target_profit_margin"`

	// Derived fields, consistent with inputs as of the last recompute.
	CalculatedMargin float64 `json:"calculated_margin"`
	TotalProfit      float64 `json:"total_profit"`
	TotalTradePrice  float64 `json:"total_trade_price"`
	TotalRetailPrice float64 `json:"total_retail_price"`
	HealthStatus     string  `json:"health_status"` // green, amber, red

	// Set when a recompute finds product ids that no longer resolve in the
	// catalog; those lines are dropped from totals and the quote is flagged.
	NeedsProductReview bool `json:"needs_product_review"`

	// AI interaction state.
	AISuggestions  string     `gorm:"type:text" json:"ai_suggestions"`
	AIModelUsed    string     `json:"ai_model_used"`
	LastAIFeedback *time.Time `json:"last_ai_feedback"`
	// Reserved for a future conversational extension; never populated by the
	// one-shot suggestion flow.
	ChatLog       string     `gorm:"type:text" json:"chat_log"`
	ChatStartedAt *time.Time `json:"chat_started_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
