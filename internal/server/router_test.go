package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/quotewise/quotewise/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
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

func newTestServer(t *testing.T) (*httptest.Server, *http.Client) {
	t.Helper()
	db := setupTestDB(t)
	srv := httptest.NewServer(New(db, ""))
	t.Cleanup(srv.Close)
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("jar: %v", err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return srv, client
}

func jsonPost(t *testing.T, client *http.Client, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func jsonGet(t *testing.T, client *http.Client, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	srv, client := newTestServer(t)
	for _, path := range []string{"/health", "/healthz"} {
		resp := jsonGet(t, client, srv.URL+path)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestProtectedRoutesRejectAnonymous(t *testing.T) {
	srv, client := newTestServer(t)

	resp := jsonGet(t, client, srv.URL+"/quotes")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("json client: expected 401 got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Browser-style request gets the login redirect instead.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/products", nil)
	req.Header.Set("Accept", "text/html")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("html client: expected 303 got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/login" {
		t.Fatalf("expected /login redirect, got %q", loc)
	}
}

func TestSignupProductQuoteFlow(t *testing.T) {
	srv, client := newTestServer(t)

	resp := jsonPost(t, client, srv.URL+"/signup", `{"email":"flow@test","password":"secret","name":"Flow"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup: expected 201 got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The session cookie from signup authenticates everything after.
	resp = jsonPost(t, client, srv.URL+"/products", `{"name":"Switch","category":"Networking","quantity":4,"trade_price":50,"retail_price":90}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("product: expected 201 got %d", resp.StatusCode)
	}
	var p models.Product
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	resp.Body.Close()

	body := fmt.Sprintf(`{"customer_name":"Acme","product_ids":[%d],"labor_hours":1,"labor_cost_per_hour":10,"fixed_overheads":0,"target_profit_margin":20}`, p.ID)
	resp = jsonPost(t, client, srv.URL+"/quotes", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("quote: expected 201 got %d", resp.StatusCode)
	}
	var q models.Quote
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		t.Fatalf("decode quote: %v", err)
	}
	resp.Body.Close()
	// gross 40 - labor 10 = 30 profit on 90 retail -> 33.33%, green at target 20.
	if q.TotalProfit != 30 || q.CalculatedMargin != 33.33 || q.HealthStatus != models.HealthGreen {
		t.Fatalf("unexpected quote math: profit=%v margin=%v health=%s", q.TotalProfit, q.CalculatedMargin, q.HealthStatus)
	}

	resp = jsonGet(t, client, srv.URL+"/quotes")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200 got %d", resp.StatusCode)
	}
	var list struct {
		Items []models.Quote `json:"items"`
		Total int64          `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	resp.Body.Close()
	if list.Total != 1 || len(list.Items) != 1 || list.Items[0].ID != q.ID {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestLoginLogoutCycle(t *testing.T) {
	srv, client := newTestServer(t)

	resp := jsonPost(t, client, srv.URL+"/signup", `{"email":"cycle@test","password":"secret"}`)
	resp.Body.Close()

	resp = jsonPost(t, client, srv.URL+"/logout", ``)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: expected 200 got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = jsonGet(t, client, srv.URL+"/quotes")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("after logout: expected 401 got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = jsonPost(t, client, srv.URL+"/login", `{"email":"cycle@test","password":"wrong"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password: expected 401 got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = jsonPost(t, client, srv.URL+"/login", `{"email":"cycle@test","password":"secret"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200 got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = jsonGet(t, client, srv.URL+"/quotes")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("after login: expected 200 got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
