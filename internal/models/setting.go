package models

import "time"

// Setting holds one row of per-user defaults plus LLM credentials. Defaults
// mirror what new users get before they have touched the settings page.
type Setting struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UserID             uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	LaborHours         float64   `gorm:"not null;default:1" json:"labor_hours"`
	LaborCostPerHour   float64   `gorm:"not null;default:10" json:"labor_cost_per_hour"`
	FixedOverheads     float64   `gorm:"not null;default:0" json:"fixed_overheads"`
	TargetProfitMargin float64   `gorm:"not null;default:20" json:"target_profit_margin"`
	LLMProvider        string    `gorm:"not null;default:'openai'" json:"llm_provider"`
	APIKey             string    `json:"-"` // secret, never serialized
	ModelName          string    `json:"model_name"`
	ConnectionStatus   string    `json:"connection_status"` // success, error
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
