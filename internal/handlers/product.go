package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/quotewise/quotewise/internal/httpx"
	"github.com/quotewise/quotewise/internal/models"
	"github.com/quotewise/quotewise/internal/validation"
)

type ProductHandler struct {
	DB *gorm.DB
}

func NewProductHandler(db *gorm.DB) *ProductHandler { return &ProductHandler{DB: db} }

// List: GET /products - ordered by name, the catalog index view's ordering.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	var products []models.Product
	if err := h.DB.Order("name asc").Find(&products).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_products", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": products, "total": len(products)})
}

type productInput struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Quantity    *int     `json:"quantity"`
	TradePrice  *float64 `json:"trade_price"`
	RetailPrice *float64 `json:"retail_price"`
	MPN         string   `json:"mpn"`
	SKU         string   `json:"sku"`
}

func readProductInput(r *http.Request) (productInput, bool) {
	var in productInput
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			return in, false
		}
		return in, true
	}
	if err := r.ParseForm(); err != nil {
		return in, false
	}
	in.Name = r.FormValue("name")
	in.Category = r.FormValue("category")
	in.MPN = r.FormValue("mpn")
	in.SKU = r.FormValue("sku")
	if v := r.FormValue("quantity"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			in.Quantity = &n
		}
	}
	if v := r.FormValue("trade_price"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			in.TradePrice = &f
		}
	}
	if v := r.FormValue("retail_price"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			in.RetailPrice = &f
		}
	}
	return in, true
}

func (in productInput) validate() validation.Violations {
	v := validation.Violations{}
	validation.Required("name", in.Name, v)
	validation.Required("category", in.Category, v)
	if in.Quantity == nil {
		v["quantity"] = "required"
	} else {
		validation.NonNegativeInt("quantity", *in.Quantity, v)
	}
	if in.TradePrice == nil {
		v["trade_price"] = "required"
	}
	if in.RetailPrice == nil {
		v["retail_price"] = "required"
	}
	return v
}

// Create: POST /products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := readProductInput(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_input", nil)
		return
	}
	if v := in.validate(); !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	p := models.Product{
		Name:        strings.TrimSpace(in.Name),
		Category:    strings.TrimSpace(in.Category),
		Quantity:    *in.Quantity,
		TradePrice:  *in.TradePrice,
		RetailPrice: *in.RetailPrice,
		MPN:         strings.TrimSpace(in.MPN),
		SKU:         strings.TrimSpace(in.SKU),
	}
	if err := h.DB.Create(&p).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "product_create_failed", nil)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusCreated, p)
		return
	}
	http.Redirect(w, r, "/products", http.StatusSeeOther)
}

// Update: POST/PUT/PATCH /products/update?id= - full replacement of mutable
// attributes, matching the original's PUT semantics.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
		httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	id := idParam(r)
	if id <= 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	var p models.Product
	if err := h.DB.First(&p, id).Error; err != nil {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	in, ok := readProductInput(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_input", nil)
		return
	}
	if v := in.validate(); !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	p.Name = strings.TrimSpace(in.Name)
	p.Category = strings.TrimSpace(in.Category)
	p.Quantity = *in.Quantity
	p.TradePrice = *in.TradePrice
	p.RetailPrice = *in.RetailPrice
	p.MPN = strings.TrimSpace(in.MPN)
	p.SKU = strings.TrimSpace(in.SKU)
	if err := h.DB.Save(&p).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "update_failed", nil)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, p)
		return
	}
	http.Redirect(w, r, "/products", http.StatusSeeOther)
}

// Delete: POST|DELETE /products/delete?id= - hard delete. Quotes keep their
// id references; the next recompute drops the line and flags the quote.
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	id := idParam(r)
	if id <= 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	res := h.DB.Where("id = ?", id).Delete(&models.Product{})
	if res.Error != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "delete_failed", nil)
		return
	}
	if res.RowsAffected == 0 {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{"deleted": id})
		return
	}
	http.Redirect(w, r, "/products", http.StatusSeeOther)
}

func idParam(r *http.Request) int {
	idStr := r.URL.Query().Get("id")
	if idStr == "" {
		idStr = r.FormValue("id")
	}
	id, _ := strconv.Atoi(idStr)
	return id
}
