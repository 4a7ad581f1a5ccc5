package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"bankledger/internal/ledger"
	"bankledger/internal/middleware"
	"bankledger/internal/models"
	"bankledger/internal/service"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to distinct status codes so callers
// can show an actionable message.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidCategory),
		errors.Is(err, ledger.ErrSameAccount):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrHolderExists):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrBusy),
		errors.Is(err, ledger.ErrAllocationExhausted):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func holderFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	username, ok := middleware.Holder(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
	return username, ok
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles holder registration and account creation
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username and password are required"})
		return
	}

	holder, account, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"username": holder.Username,
		"account":  account,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles holder authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	token, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Account returns the authenticated holder's account
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	username, ok := holderFrom(w, r)
	if !ok {
		return
	}
	account, err := h.svc.Account(r.Context(), username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

type amountRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Category models.Category `json:"category"`
}

// Deposit credits the holder's account
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	username, ok := holderFrom(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	t, err := h.svc.Deposit(r.Context(), username, req.Amount, req.Category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// Withdraw debits the holder's account
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	username, ok := holderFrom(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	t, err := h.svc.Withdraw(r.Context(), username, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

type transferRequest struct {
	RecipientAccountNumber string          `json:"recipient_account_number"`
	Amount                 decimal.Decimal `json:"amount"`
	Category               models.Category `json:"category"`
}

// Transfer moves funds from the holder's account to the recipient
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	username, ok := holderFrom(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	res, err := h.svc.Transfer(r.Context(), username, req.RecipientAccountNumber, req.Amount, req.Category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// parseFilter reads the optional query parameters category, type,
// start_date, end_date (both YYYY-MM-DD, inclusive) and limit.
func parseFilter(r *http.Request) (ledger.Filter, error) {
	var f ledger.Filter
	q := r.URL.Query()
	f.Category = models.Category(q.Get("category"))
	f.Type = models.TransactionType(q.Get("type"))
	if v := q.Get("start_date"); v != "" {
		from, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, fmt.Errorf("invalid start_date %q", v)
		}
		f.From = from
	}
	if v := q.Get("end_date"); v != "" {
		to, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, fmt.Errorf("invalid end_date %q", v)
		}
		// inclusive upper bound covers the whole end day
		f.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = limit
	}
	return f, nil
}

// Transactions returns the holder's filtered history, newest first
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	username, ok := holderFrom(w, r)
	if !ok {
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	transactions, err := h.svc.Transactions(r.Context(), username, f)
	if err != nil {
		writeError(w, err)
		return
	}
	if transactions == nil {
		transactions = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, transactions)
}

// Statement downloads the holder's filtered history as an XML document
func (h *Handler) Statement(w http.ResponseWriter, r *http.Request) {
	username, ok := holderFrom(w, r)
	if !ok {
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	doc, filename, err := h.svc.Statement(r.Context(), username, f)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(doc)
}

// DeleteAllAccounts handles the administrative bulk wipe
func (h *Handler) DeleteAllAccounts(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteAllAccounts(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
