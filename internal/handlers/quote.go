package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/quotewise/quotewise/internal/auth"
	"github.com/quotewise/quotewise/internal/httpx"
	"github.com/quotewise/quotewise/internal/llm"
	"github.com/quotewise/quotewise/internal/quote"
	"github.com/quotewise/quotewise/internal/suggest"
	"github.com/quotewise/quotewise/internal/validation"
)

type QuoteHandler struct {
	DB      *gorm.DB
	Quotes  *quote.Service
	Suggest *suggest.Service
}

func NewQuoteHandler(db *gorm.DB, quotes *quote.Service, sg *suggest.Service) *QuoteHandler {
	return &QuoteHandler{DB: db, Quotes: quotes, Suggest: sg}
}

// writeServiceError maps the typed service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var vErr *validation.Error
	if errors.As(err, &vErr) {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", vErr.Violations)
		return
	}
	if errors.Is(err, quote.ErrNotFound) {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	var cfgErr *suggest.ConfigError
	if errors.As(err, &cfgErr) {
		httpx.JSONError(w, http.StatusUnprocessableEntity, "llm_not_configured", cfgErr.Reason)
		return
	}
	var remErr *llm.RemoteError
	if errors.As(err, &remErr) {
		httpx.JSONError(w, http.StatusBadGateway, "llm_request_failed", remErr.Error())
		return
	}
	httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
}

// List: GET /quotes - the caller's quotes, newest first.
func (h *QuoteHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	quotes, err := h.Quotes.ListForUser(uid)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_quotes", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": quotes, "total": len(quotes)})
}

// Get: GET /quotes/get?id=
func (h *QuoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id := idParam(r)
	if id <= 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	q, err := h.Quotes.Get(uid, uint(id))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

type quoteInput struct {
	CustomerName       string  `json:"customer_name"`
	CustomerAddress    string  `json:"customer_address"`
	ProductIDs         []int64 `json:"product_ids"`
	LaborHours         float64 `json:"labor_hours"`
	LaborCostPerHour   float64 `json:"labor_cost_per_hour"`
	FixedOverheads     float64 `json:"fixed_overheads"`
	TargetProfitMargin float64 `json:"target_profit_margin"`
}

func readQuoteInput(r *http.Request) (quoteInput, bool) {
	var in quoteInput
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			return in, false
		}
		return in, true
	}
	if err := r.ParseForm(); err != nil {
		return in, false
	}
	in.CustomerName = r.FormValue("customer_name")
	in.CustomerAddress = r.FormValue("customer_address")
	for _, raw := range r.Form["product_ids"] {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			in.ProductIDs = append(in.ProductIDs, n)
		}
	}
	in.LaborHours = formFloat(r, "labor_hours")
	in.LaborCostPerHour = formFloat(r, "labor_cost_per_hour")
	in.FixedOverheads = formFloat(r, "fixed_overheads")
	in.TargetProfitMargin = formFloat(r, "target_profit_margin")
	return in, true
}

func formFloat(r *http.Request, field string) float64 {
	f, _ := strconv.ParseFloat(r.FormValue(field), 64)
	return f
}

// Create: POST /quotes - validates, resolves products, computes and persists.
func (h *QuoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	in, ok := readQuoteInput(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_input", nil)
		return
	}
	q, err := h.Quotes.Create(quote.CreateInput{
		UserID:             uid,
		CustomerName:       in.CustomerName,
		CustomerAddress:    in.CustomerAddress,
		ProductIDs:         in.ProductIDs,
		LaborHours:         in.LaborHours,
		LaborCostPerHour:   in.LaborCostPerHour,
		FixedOverheads:     in.FixedOverheads,
		TargetProfitMargin: in.TargetProfitMargin,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusCreated, q)
		return
	}
	http.Redirect(w, r, "/quotes", http.StatusSeeOther)
}

// ReviseProducts: POST /quotes/products?id= - replaces the product set and
// recomputes with the quote's existing cost parameters.
func (h *QuoteHandler) ReviseProducts(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id := idParam(r)
	if id <= 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	in, ok := readQuoteInput(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_input", nil)
		return
	}
	q, err := h.Quotes.ReviseProducts(uid, uint(id), in.ProductIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, q)
		return
	}
	http.Redirect(w, r, "/quotes", http.StatusSeeOther)
}

// ReviseCosts: POST /quotes/costs?id= - replaces labor/overhead/target and
// recomputes with the stored product set.
func (h *QuoteHandler) ReviseCosts(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id := idParam(r)
	if id <= 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	in, ok := readQuoteInput(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_input", nil)
		return
	}
	q, err := h.Quotes.ReviseCostParameters(uid, uint(id), quote.CostInput{
		LaborHours:         in.LaborHours,
		LaborCostPerHour:   in.LaborCostPerHour,
		FixedOverheads:     in.FixedOverheads,
		TargetProfitMargin: in.TargetProfitMargin,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, q)
		return
	}
	http.Redirect(w, r, "/quotes", http.StatusSeeOther)
}

// ReviseCustomer: POST /quotes/customer?id= - customer identity only, no
// derived field is touched.
func (h *QuoteHandler) ReviseCustomer(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id := idParam(r)
	if id <= 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	in, ok := readQuoteInput(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_input", nil)
		return
	}
	q, err := h.Quotes.ReviseCustomer(uid, uint(id), in.CustomerName, in.CustomerAddress)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, q)
		return
	}
	http.Redirect(w, r, "/quotes", http.StatusSeeOther)
}

// Delete: POST|DELETE /quotes/delete?id=
func (h *QuoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	uid, _ := auth.UserIDFromContext(r.Context())
	id := idParam(r)
	if id <= 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	if err := h.Quotes.Delete(uid, uint(id)); err != nil {
		writeServiceError(w, err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{"deleted": id})
		return
	}
	http.Redirect(w, r, "/quotes", http.StatusSeeOther)
}

// GenerateSuggestion: POST /quotes/suggest?id= - one-shot LLM suggestion with
// optional free-text context.
func (h *QuoteHandler) GenerateSuggestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	uid, _ := auth.UserIDFromContext(r.Context())
	id := idParam(r)
	if id <= 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	var freeText string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Context string `json:"context"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
			return
		}
		freeText = body.Context
	} else if err := r.ParseForm(); err == nil {
		freeText = r.FormValue("context")
	}
	q, err := h.Suggest.Generate(r.Context(), uid, uint(id), freeText)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}
