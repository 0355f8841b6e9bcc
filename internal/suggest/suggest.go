// Package suggest assembles a bounded context payload describing a quote's
// economics plus candidate substitutions, hands it to the configured text
// generator, and records the result on the quote.
package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/quotewise/quotewise/internal/llm"
	"github.com/quotewise/quotewise/internal/models"
	"github.com/quotewise/quotewise/internal/quote"
	"github.com/quotewise/quotewise/internal/validation"
)

// MaxContextLen caps the caller-supplied free-text context.
const MaxContextLen = 1000

// Alternatives offered per category, excluding products already quoted.
const alternativesPerCategory = 10

// Response-length cap handed to the generator.
const maxResponseTokens = 1200

// ConfigError means suggestion generation was requested without a usable LLM
// configuration (no settings row, or no stored API key).
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "llm not configured: " + e.Reason }

// GeneratorFactory builds a Generator from stored credentials. Injected so
// tests can substitute a stub without network access.
type GeneratorFactory func(provider, apiKey, baseURL string) llm.Generator

// Service wires the composer to storage, the quote engine and the generator.
type Service struct {
	DB         *gorm.DB
	Quotes     *quote.Service
	NewGen     GeneratorFactory
	LLMBaseURL string
}

func NewService(db *gorm.DB, quotes *quote.Service, baseURL string) *Service {
	return &Service{
		DB:     db,
		Quotes: quotes,
		NewGen: func(_, apiKey, base string) llm.Generator {
			return llm.NewClient(apiKey, base)
		},
		LLMBaseURL: baseURL,
	}
}

type productLine struct {
	Name     string  `json:"name"`
	SKU      string  `json:"sku"`
	Cost     float64 `json:"cost"`
	Sell     float64 `json:"sell"`
	Category string  `json:"category,omitempty"`
}

type payload struct {
	Products               []productLine            `json:"products"`
	AlternativesByCategory map[string][]productLine `json:"alternatives_by_category"`
	LaborHours             float64                  `json:"labor_hours"`
	LaborCostPerHour       float64                  `json:"labor_cost_per_hour"`
	FixedOverheads         float64                  `json:"fixed_overheads"`
	TargetProfitMargin     float64                  `json:"target_profit_margin"`
	CalculatedMargin       float64                  `json:"calculated_margin"`
	HealthStatus           string                   `json:"health_status"`
}

const systemPrompt = "You are a business analyst helping a trades business improve the profitability of customer quotes."

const instructions = `Review the quote data below and respond with four sections:
1. Margin adjustments: concrete changes to pricing or overheads that would move the margin toward target.
2. Labor and resource improvements: ways to reduce labor hours or cost without hurting delivery.
3. Product swap suggestions: substitutions drawn only from the alternatives pool provided, with the expected effect on margin.
4. Profitability summary: a short overall verdict on this quote's health.`

// Generate runs the one-shot suggestion flow for the caller's quote and
// persists the returned text. On any generator failure the quote is left
// untouched, existing suggestions included.
func (s *Service) Generate(ctx context.Context, userID, quoteID uint, freeText string) (*models.Quote, error) {
	v := validation.Violations{}
	validation.MaxLen("context", freeText, MaxContextLen, v)
	if err := validation.Fail(v); err != nil {
		return nil, err
	}

	var settings models.Setting
	err := s.DB.Where("user_id = ?", userID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &ConfigError{Reason: "no settings for user"}
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(settings.APIKey) == "" {
		return nil, &ConfigError{Reason: "missing api key"}
	}

	q, err := s.Quotes.Get(userID, quoteID)
	if err != nil {
		return nil, err
	}
	products, _, err := s.Quotes.Resolve(q)
	if err != nil {
		return nil, err
	}

	alternatives, err := s.alternativesFor(products, q.ProductIDs)
	if err != nil {
		return nil, err
	}

	pl := payload{
		Products:               make([]productLine, 0, len(products)),
		AlternativesByCategory: alternatives,
		LaborHours:             q.LaborHours,
		LaborCostPerHour:       q.LaborCostPerHour,
		FixedOverheads:         q.FixedOverheads,
		TargetProfitMargin:     q.TargetProfitMargin,
		CalculatedMargin:       q.CalculatedMargin,
		HealthStatus:           q.HealthStatus,
	}
	for _, p := range products {
		pl.Products = append(pl.Products, productLine{Name: p.Name, SKU: p.SKU, Cost: p.TradePrice, Sell: p.RetailPrice, Category: p.Category})
	}
	encoded, err := json.MarshalIndent(pl, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	var b strings.Builder
	b.WriteString(instructions)
	if ft := strings.TrimSpace(freeText); ft != "" {
		b.WriteString("\n\nAdditional context from the quote owner:\n")
		b.WriteString(ft)
	}
	b.WriteString("\n\nQuote data:\n")
	b.Write(encoded)

	model := settings.ModelName
	if model == "" {
		model = llm.DefaultModel
	}
	gen := s.NewGen(settings.LLMProvider, settings.APIKey, s.LLMBaseURL)
	text, err := gen.Generate(ctx, llm.GenerateRequest{
		System:    systemPrompt,
		Prompt:    b.String(),
		Model:     model,
		MaxTokens: maxResponseTokens,
	})
	if err != nil {
		// Quote untouched: the previous suggestion, if any, stays.
		return nil, err
	}

	now := time.Now()
	q.AISuggestions = text
	q.AIModelUsed = model
	q.LastAIFeedback = &now
	if err := s.DB.Save(q).Error; err != nil {
		return nil, err
	}
	return q, nil
}

// alternativesFor groups up to alternativesPerCategory other catalog products
// for each category present in the quote, excluding already-quoted ids.
func (s *Service) alternativesFor(products []models.Product, quotedIDs []int64) (map[string][]productLine, error) {
	categories := make([]string, 0)
	seen := make(map[string]bool)
	for _, p := range products {
		if p.Category != "" && !seen[p.Category] {
			seen[p.Category] = true
			categories = append(categories, p.Category)
		}
	}
	out := make(map[string][]productLine, len(categories))
	for _, cat := range categories {
		var alts []models.Product
		dbq := s.DB.Where("category = ?", cat)
		if len(quotedIDs) > 0 {
			dbq = dbq.Where("id NOT IN ?", quotedIDs)
		}
		if err := dbq.Order("name asc").Limit(alternativesPerCategory).Find(&alts).Error; err != nil {
			return nil, err
		}
		lines := make([]productLine, 0, len(alts))
		for _, a := range alts {
			lines = append(lines, productLine{Name: a.Name, SKU: a.SKU, Cost: a.TradePrice, Sell: a.RetailPrice})
		}
		out[cat] = lines
	}
	return out, nil
}
