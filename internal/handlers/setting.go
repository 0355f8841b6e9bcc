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
	"github.com/quotewise/quotewise/internal/models"
	"github.com/quotewise/quotewise/internal/validation"
)

// ConnectionTester probes LLM credentials without touching any quote.
// Injected so handler tests can avoid the network.
type ConnectionTester func(r *http.Request, provider, apiKey, model string) (string, error)

type SettingHandler struct {
	DB         *gorm.DB
	LLMBaseURL string
	TestConn   ConnectionTester
}

func NewSettingHandler(db *gorm.DB, llmBaseURL string) *SettingHandler {
	h := &SettingHandler{DB: db, LLMBaseURL: llmBaseURL}
	h.TestConn = func(r *http.Request, provider, apiKey, model string) (string, error) {
		return llm.NewClient(apiKey, h.LLMBaseURL).TestConnection(r.Context(), provider, model)
	}
	return h
}

// Get: GET /settings - the caller's settings row, defaults if none saved yet.
func (h *SettingHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	var s models.Setting
	err := h.DB.Where("user_id = ?", uid).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s = defaultSettings(uid)
	} else if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_load_settings", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"settings":    s,
		"has_api_key": strings.TrimSpace(s.APIKey) != "",
	})
}

func defaultSettings(uid uint) models.Setting {
	return models.Setting{
		UserID:             uid,
		LaborHours:         1,
		LaborCostPerHour:   10,
		FixedOverheads:     0,
		TargetProfitMargin: 20,
		LLMProvider:        "openai",
	}
}

type settingInput struct {
	LaborHours         *float64 `json:"labor_hours"`
	LaborCostPerHour   *float64 `json:"labor_cost_per_hour"`
	FixedOverheads     *float64 `json:"fixed_overheads"`
	TargetProfitMargin *float64 `json:"target_profit_margin"`
	LLMProvider        string   `json:"llm_provider"`
	APIKey             string   `json:"api_key"`
	ModelName          string   `json:"model_name"`
	ConnectionStatus   string   `json:"connection_status"`
}

func readSettingInput(r *http.Request) (settingInput, bool) {
	var in settingInput
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			return in, false
		}
		return in, true
	}
	if err := r.ParseForm(); err != nil {
		return in, false
	}
	in.LLMProvider = r.FormValue("llm_provider")
	in.APIKey = r.FormValue("api_key")
	in.ModelName = r.FormValue("model_name")
	in.ConnectionStatus = r.FormValue("connection_status")
	if f, ok := formFloatPtr(r, "labor_hours"); ok {
		in.LaborHours = f
	}
	if f, ok := formFloatPtr(r, "labor_cost_per_hour"); ok {
		in.LaborCostPerHour = f
	}
	if f, ok := formFloatPtr(r, "fixed_overheads"); ok {
		in.FixedOverheads = f
	}
	if f, ok := formFloatPtr(r, "target_profit_margin"); ok {
		in.TargetProfitMargin = f
	}
	return in, true
}

func formFloatPtr(r *http.Request, field string) (*float64, bool) {
	v := r.FormValue(field)
	if v == "" {
		return nil, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, false
	}
	return &f, true
}

// Upsert: POST /settings - creates or updates the caller's single row.
func (h *SettingHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	in, ok := readSettingInput(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_input", nil)
		return
	}
	v := validation.Violations{}
	if in.LaborHours == nil {
		v["labor_hours"] = "required"
	} else {
		validation.PositiveFloat("labor_hours", *in.LaborHours, v)
	}
	if in.LaborCostPerHour == nil {
		v["labor_cost_per_hour"] = "required"
	} else {
		validation.PositiveFloat("labor_cost_per_hour", *in.LaborCostPerHour, v)
	}
	if in.FixedOverheads == nil {
		v["fixed_overheads"] = "required"
	} else {
		validation.NonNegativeFloat("fixed_overheads", *in.FixedOverheads, v)
	}
	if in.TargetProfitMargin == nil {
		v["target_profit_margin"] = "required"
	} else {
		validation.NonNegativeFloat("target_profit_margin", *in.TargetProfitMargin, v)
	}
	validation.Required("llm_provider", in.LLMProvider, v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}

	var s models.Setting
	err := h.DB.Where("user_id = ?", uid).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s = models.Setting{UserID: uid}
	} else if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_load_settings", nil)
		return
	}
	s.LaborHours = *in.LaborHours
	s.LaborCostPerHour = *in.LaborCostPerHour
	s.FixedOverheads = *in.FixedOverheads
	s.TargetProfitMargin = *in.TargetProfitMargin
	s.LLMProvider = strings.TrimSpace(in.LLMProvider)
	if in.APIKey != "" {
		// Blank means "keep the stored key"; the secret never round-trips.
		s.APIKey = in.APIKey
	}
	s.ModelName = strings.TrimSpace(in.ModelName)
	if in.ConnectionStatus != "" {
		s.ConnectionStatus = in.ConnectionStatus
	}
	if err := h.DB.Save(&s).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "settings_save_failed", nil)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, s)
		return
	}
	http.Redirect(w, r, "/settings", http.StatusSeeOther)
}

// TestConnection: POST /settings/test-connection - pings the provider with
// the submitted credentials and records the outcome on the stored row (if
// any). The quote store is never touched.
func (h *SettingHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	uid, _ := auth.UserIDFromContext(r.Context())
	var in struct {
		Provider  string `json:"provider"`
		APIKey    string `json:"api_key"`
		ModelName string `json:"model_name"`
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
			return
		}
	} else if err := r.ParseForm(); err == nil {
		in.Provider = r.FormValue("provider")
		in.APIKey = r.FormValue("api_key")
		in.ModelName = r.FormValue("model_name")
	}
	if in.APIKey == "" {
		// Fall back to the stored key so the saved configuration can be probed.
		var s models.Setting
		if err := h.DB.Where("user_id = ?", uid).First(&s).Error; err == nil {
			in.APIKey = s.APIKey
			if in.Provider == "" {
				in.Provider = s.LLMProvider
			}
			if in.ModelName == "" {
				in.ModelName = s.ModelName
			}
		}
	}
	if in.Provider == "" {
		in.Provider = "openai"
	}

	status, err := h.TestConn(r, in.Provider, in.APIKey, in.ModelName)
	var detail string
	if err != nil {
		detail = err.Error()
	}
	// Best-effort: remember the outcome on the stored settings row.
	h.DB.Model(&models.Setting{}).Where("user_id = ?", uid).Update("connection_status", status)

	httpx.JSON(w, http.StatusOK, map[string]any{"connection_status": status, "detail": detail})
}
