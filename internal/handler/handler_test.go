package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"bankledger/internal/config"
	"bankledger/internal/handler"
	"bankledger/internal/ledger"
	"bankledger/internal/middleware"
	"bankledger/internal/models"
	"bankledger/internal/notify"
	"bankledger/internal/repository"
	"bankledger/internal/service"
)

// newTestServer wires the full stack over the in-memory store with the
// same routes the api binary registers.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := &config.Config{JWTSecret: "test-secret", AdminToken: "admin-token"}

	store := repository.NewMemory()
	engine := ledger.NewEngine(store, log)
	alloc := ledger.NewAllocator(store)
	mailer := notify.NewMailer(cfg, log)
	svc := service.NewService(store, engine, alloc, mailer, cfg, log)
	h := handler.NewHandler(svc)

	r := mux.NewRouter()
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	authRouter := r.PathPrefix("/account").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("", h.Account).Methods("GET")
	authRouter.HandleFunc("/deposit", h.Deposit).Methods("POST")
	authRouter.HandleFunc("/withdraw", h.Withdraw).Methods("POST")
	authRouter.HandleFunc("/transfer", h.Transfer).Methods("POST")
	authRouter.HandleFunc("/transactions", h.Transactions).Methods("GET")
	authRouter.HandleFunc("/statement", h.Statement).Methods("GET")
	adminRouter := r.PathPrefix("/admin").Subrouter()
	adminRouter.Use(middleware.AdminMiddleware(cfg))
	adminRouter.HandleFunc("/accounts", h.DeleteAllAccounts).Methods("DELETE")

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// registerAndLogin creates a holder and returns its token and account number.
func registerAndLogin(t *testing.T, srv *httptest.Server, username string) (string, string) {
	t.Helper()
	resp := do(t, "POST", srv.URL+"/register", "", map[string]string{
		"username": username, "email": username + "@example.com", "password": "hunter22",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	reg := decode[struct {
		Account models.Account `json:"account"`
	}](t, resp)

	resp = do(t, "POST", srv.URL+"/login", "", map[string]string{
		"username": username, "password": "hunter22",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	login := decode[struct {
		Token string `json:"token"`
	}](t, resp)
	return login.Token, reg.Account.AccountNumber
}

func TestAPIFlow(t *testing.T) {
	srv := newTestServer(t)
	alice, _ := registerAndLogin(t, srv, "alice")
	_, bobNumber := registerAndLogin(t, srv, "bob")

	resp := do(t, "POST", srv.URL+"/account/deposit", alice, map[string]any{"amount": 100})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("deposit status = %d", resp.StatusCode)
	}
	resp = do(t, "POST", srv.URL+"/account/withdraw", alice, map[string]any{"amount": 30})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("withdraw status = %d", resp.StatusCode)
	}
	resp = do(t, "POST", srv.URL+"/account/transfer", alice, map[string]any{
		"recipient_account_number": bobNumber, "amount": 50, "category": "food",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("transfer status = %d", resp.StatusCode)
	}

	resp = do(t, "GET", srv.URL+"/account", alice, nil)
	account := decode[models.Account](t, resp)
	if account.Balance.String() != "20" {
		t.Fatalf("balance = %s, want 20", account.Balance)
	}

	resp = do(t, "GET", srv.URL+"/account/transactions", alice, nil)
	txs := decode[[]models.Transaction](t, resp)
	if len(txs) != 3 {
		t.Fatalf("transactions = %d, want 3", len(txs))
	}
	if txs[0].Type != models.TypeTransfer {
		t.Fatalf("newest type = %s, want transfer", txs[0].Type)
	}

	resp = do(t, "GET", srv.URL+"/account/transactions?category=food", alice, nil)
	txs = decode[[]models.Transaction](t, resp)
	if len(txs) != 1 || txs[0].Category != models.CategoryFood {
		t.Fatalf("food transactions = %+v", txs)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	alice, aliceNumber := registerAndLogin(t, srv, "alice")

	cases := []struct {
		name string
		path string
		body map[string]any
		want int
	}{
		{"overdraft", "/account/withdraw", map[string]any{"amount": 10}, http.StatusConflict},
		{"zero amount", "/account/deposit", map[string]any{"amount": 0}, http.StatusBadRequest},
		{"sub-cent amount", "/account/deposit", map[string]any{"amount": "10.999"}, http.StatusBadRequest},
		{"unknown category", "/account/deposit", map[string]any{"amount": 5, "category": "travel"}, http.StatusBadRequest},
		{"unknown recipient", "/account/transfer", map[string]any{"recipient_account_number": "999999", "amount": 1}, http.StatusNotFound},
		{"self transfer", "/account/transfer", map[string]any{"recipient_account_number": aliceNumber, "amount": 1}, http.StatusBadRequest},
	}
	// Cover the overdraft and transfer cases with some funds present.
	resp := do(t, "POST", srv.URL+"/account/deposit", alice, map[string]any{"amount": 5})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("seed deposit status = %d", resp.StatusCode)
	}

	for _, tc := range cases {
		resp := do(t, "POST", srv.URL+tc.path, alice, tc.body)
		if resp.StatusCode != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, resp.StatusCode, tc.want)
		}
	}

	// Distinct error payloads carry a message.
	resp = do(t, "POST", srv.URL+"/account/withdraw", alice, map[string]any{"amount": 1000})
	body := decode[map[string]string](t, resp)
	if body["error"] == "" {
		t.Fatal("error response missing message")
	}
}

func TestAPIAuth(t *testing.T) {
	srv := newTestServer(t)
	registerAndLogin(t, srv, "alice")

	resp := do(t, "GET", srv.URL+"/account", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", resp.StatusCode)
	}
	resp = do(t, "GET", srv.URL+"/account", "not-a-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", resp.StatusCode)
	}
	resp = do(t, "POST", srv.URL+"/login", "", map[string]string{"username": "alice", "password": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", resp.StatusCode)
	}
}

func TestAPIStatement(t *testing.T) {
	srv := newTestServer(t)
	alice, _ := registerAndLogin(t, srv, "alice")
	do(t, "POST", srv.URL+"/account/deposit", alice, map[string]any{"amount": "12.34", "category": "utilities"})

	resp := do(t, "GET", srv.URL+"/account/statement", alice, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("statement status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/xml" {
		t.Fatalf("content type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd == "" {
		t.Fatal("missing content disposition")
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("$12.34")) {
		t.Fatalf("statement missing amount:\n%s", body)
	}
}

func TestAPIAdminWipe(t *testing.T) {
	srv := newTestServer(t)
	alice, _ := registerAndLogin(t, srv, "alice")

	req, _ := http.NewRequest("DELETE", srv.URL+"/admin/accounts", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unauthenticated wipe status = %d, want 403", resp.StatusCode)
	}

	req, _ = http.NewRequest("DELETE", srv.URL+"/admin/accounts", nil)
	req.Header.Set("X-Admin-Token", "admin-token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("wipe status = %d, want 204", resp.StatusCode)
	}

	resp = do(t, "GET", srv.URL+"/account", alice, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("account after wipe status = %d, want 404", resp.StatusCode)
	}
}

func TestAPIFilterValidation(t *testing.T) {
	srv := newTestServer(t)
	alice, _ := registerAndLogin(t, srv, "alice")

	for _, q := range []string{"start_date=soon", "end_date=2024-13-40", "limit=-1", "limit=x"} {
		resp := do(t, "GET", fmt.Sprintf("%s/account/transactions?%s", srv.URL, q), alice, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, resp.StatusCode)
		}
	}
}
