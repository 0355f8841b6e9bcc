package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/quotewise/quotewise/internal/llm"
	"github.com/quotewise/quotewise/internal/models"
	"github.com/quotewise/quotewise/internal/quote"
	"github.com/quotewise/quotewise/internal/validation"
)

type stubGenerator struct {
	reply   string
	err     error
	lastReq llm.GenerateRequest
	calls   int
}

func (s *stubGenerator) Generate(_ context.Context, req llm.GenerateRequest) (string, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func setupSuggestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Product{}, &models.Quote{}, &models.Setting{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(db *gorm.DB, gen llm.Generator) *Service {
	svc := NewService(db, quote.NewService(db), "")
	svc.NewGen = func(_, _, _ string) llm.Generator { return gen }
	return svc
}

func seedQuote(t *testing.T, db *gorm.DB) (models.User, models.Quote, []models.Product) {
	t.Helper()
	user := models.User{Email: "sg@test", Password: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("user: %v", err)
	}
	products := []models.Product{
		{Name: "Switch", Category: "Networking", SKU: "SW1", TradePrice: 80, RetailPrice: 140},
		{Name: "Cable", Category: "Cabling", SKU: "CB1", TradePrice: 2, RetailPrice: 6},
	}
	for i := range products {
		if err := db.Create(&products[i]).Error; err != nil {
			t.Fatalf("product: %v", err)
		}
	}
	qs := quote.NewService(db)
	q, err := qs.Create(quote.CreateInput{
		UserID: user.ID, CustomerName: "C",
		ProductIDs: []int64{int64(products[0].ID), int64(products[1].ID)},
		LaborHours: 2, LaborCostPerHour: 30, FixedOverheads: 10, TargetProfitMargin: 20,
	})
	if err != nil {
		t.Fatalf("create quote: %v", err)
	}
	return user, *q, products
}

func seedSettings(t *testing.T, db *gorm.DB, userID uint, apiKey, model string) {
	t.Helper()
	s := models.Setting{UserID: userID, LaborHours: 1, LaborCostPerHour: 10, TargetProfitMargin: 20, LLMProvider: "openai", APIKey: apiKey, ModelName: model}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("settings: %v", err)
	}
}

func TestGenerateRequiresSettings(t *testing.T) {
	db := setupSuggestDB(t)
	user, q, _ := seedQuote(t, db)
	gen := &stubGenerator{reply: "text"}
	svc := newTestService(db, gen)

	_, err := svc.Generate(context.Background(), user.ID, q.ID, "")
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator must not be called without settings")
	}
	var reloaded models.Quote
	if err := db.First(&reloaded, q.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.AISuggestions != "" {
		t.Fatalf("ai_suggestions must stay empty, got %q", reloaded.AISuggestions)
	}
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	db := setupSuggestDB(t)
	user, q, _ := seedQuote(t, db)
	seedSettings(t, db, user.ID, "", "")
	svc := newTestService(db, &stubGenerator{reply: "text"})

	_, err := svc.Generate(context.Background(), user.ID, q.ID, "")
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError for missing key, got %v", err)
	}
}

func TestGenerateSuccessPersists(t *testing.T) {
	db := setupSuggestDB(t)
	user, q, _ := seedQuote(t, db)
	seedSettings(t, db, user.ID, "sk-test", "gpt-4o-mini")
	gen := &stubGenerator{reply: "Swap the switch for a cheaper model."}
	svc := newTestService(db, gen)

	out, err := svc.Generate(context.Background(), user.ID, q.ID, "Customer is price sensitive")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out.AISuggestions != gen.reply {
		t.Fatalf("suggestion not stored: %q", out.AISuggestions)
	}
	if out.AIModelUsed != "gpt-4o-mini" {
		t.Fatalf("model used: got %q", out.AIModelUsed)
	}
	if out.LastAIFeedback == nil {
		t.Fatalf("last_ai_feedback not set")
	}
	if out.ChatLog != "" || out.ChatStartedAt != nil {
		t.Fatalf("one-shot flow must not touch chat fields: %+v", out)
	}

	// Prompt carries the payload, the free text, and the four-section ask.
	prompt := gen.lastReq.Prompt
	for _, want := range []string{"Customer is price sensitive", "alternatives_by_category", "Margin adjustments", "Profitability summary", "\"health_status\""} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if gen.lastReq.System == "" {
		t.Fatalf("expected a system role message")
	}
}

func TestGenerateDefaultsModelName(t *testing.T) {
	db := setupSuggestDB(t)
	user, q, _ := seedQuote(t, db)
	seedSettings(t, db, user.ID, "sk-test", "")
	gen := &stubGenerator{reply: "ok"}
	svc := newTestService(db, gen)

	out, err := svc.Generate(context.Background(), user.ID, q.ID, "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if gen.lastReq.Model != llm.DefaultModel || out.AIModelUsed != llm.DefaultModel {
		t.Fatalf("expected default model, got req=%q stored=%q", gen.lastReq.Model, out.AIModelUsed)
	}
}

func TestGenerateFailureLeavesQuoteUntouched(t *testing.T) {
	db := setupSuggestDB(t)
	user, q, _ := seedQuote(t, db)
	seedSettings(t, db, user.ID, "sk-test", "")

	// First succeed so there is an existing suggestion to preserve.
	okGen := &stubGenerator{reply: "previous advice"}
	svc := newTestService(db, okGen)
	if _, err := svc.Generate(context.Background(), user.ID, q.ID, ""); err != nil {
		t.Fatalf("first generate: %v", err)
	}

	failing := &stubGenerator{err: &llm.RemoteError{Op: "send", Err: errors.New("connection refused")}}
	svc = newTestService(db, failing)
	_, err := svc.Generate(context.Background(), user.ID, q.ID, "")
	var remErr *llm.RemoteError
	if !errors.As(err, &remErr) {
		t.Fatalf("expected RemoteError, got %v", err)
	}

	var reloaded models.Quote
	if err := db.First(&reloaded, q.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.AISuggestions != "previous advice" {
		t.Fatalf("existing suggestion must be preserved, got %q", reloaded.AISuggestions)
	}
}

func TestGenerateContextTooLong(t *testing.T) {
	db := setupSuggestDB(t)
	user, q, _ := seedQuote(t, db)
	seedSettings(t, db, user.ID, "sk-test", "")
	svc := newTestService(db, &stubGenerator{reply: "ok"})

	_, err := svc.Generate(context.Background(), user.ID, q.ID, strings.Repeat("x", MaxContextLen+1))
	var vErr *validation.Error
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAlternativesExcludeQuotedAndCap(t *testing.T) {
	db := setupSuggestDB(t)
	user, q, products := seedQuote(t, db)
	seedSettings(t, db, user.ID, "sk-test", "")

	// Fill the Networking category well past the per-category cap.
	for i := 0; i < 15; i++ {
		p := models.Product{Name: fmt.Sprintf("Alt %02d", i), Category: "Networking", SKU: fmt.Sprintf("ALT%02d", i), TradePrice: 10, RetailPrice: 20}
		if err := db.Create(&p).Error; err != nil {
			t.Fatalf("alt product: %v", err)
		}
	}
	svc := newTestService(db, &stubGenerator{reply: "ok"})

	quoted, _, err := svc.Quotes.Resolve(&q)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	alts, err := svc.alternativesFor(quoted, q.ProductIDs)
	if err != nil {
		t.Fatalf("alternatives: %v", err)
	}
	networking := alts["Networking"]
	if len(networking) != 10 {
		t.Fatalf("expected cap of 10, got %d", len(networking))
	}
	for _, line := range networking {
		if line.SKU == products[0].SKU {
			t.Fatalf("quoted product leaked into alternatives: %+v", line)
		}
	}
	if len(alts["Cabling"]) != 0 {
		t.Fatalf("no cabling alternatives exist, got %v", alts["Cabling"])
	}
}
