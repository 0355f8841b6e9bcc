package models

import "time"

// Product is a catalog entry. Trade price is what we pay for it, retail
// price is what the customer is charged. MPN/SKU are optional identifiers
// carried through to suggestion payloads.
type Product struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null;index" json:"name"`
	Category    string    `gorm:"not null;index" json:"category"`
	Quantity    int       `gorm:"not null;default:0" json:"quantity"`
	TradePrice  float64   `gorm:"not null" json:"trade_price"`
	RetailPrice float64   `gorm:"not null" json:"retail_price"`
	MPN         string    `json:"mpn"`
	SKU         string    `json:"sku"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
