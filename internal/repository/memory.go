package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bankledger/internal/ledger"
	"bankledger/internal/models"
)

// Memory is an in-memory ledger.Store. It backs the test suite and the
// STORAGE=memory development mode. Per-account locks are acquired in
// ascending account-number order with an acquisition deadline, giving
// the same serialization and Busy semantics as the Postgres store; the
// state mutex guards the maps and keeps every mutation atomic with
// respect to readers.
type Memory struct {
	mu           sync.Mutex
	lockWait     time.Duration
	nextHolderID int64
	nextTxID     int64
	holders      map[string]*models.Holder
	accounts     map[string]*memAccount
}

type memAccount struct {
	lock chan struct{} // capacity 1; held while a write is in flight
	acct models.Account
	log  []models.Transaction
}

// NewMemory initializes an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		lockWait: 3 * time.Second,
		holders:  make(map[string]*models.Holder),
		accounts: make(map[string]*memAccount),
	}
}

// acquire takes the per-account locks for the given accounts in
// ascending account-number order. On failure nothing stays held.
func (m *Memory) acquire(ctx context.Context, numbers ...string) (func(), error) {
	sorted := append([]string(nil), numbers...)
	sort.Strings(sorted)

	var held []*memAccount
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].lock
		}
	}

	deadline := time.NewTimer(m.lockWait)
	defer deadline.Stop()
	for _, number := range sorted {
		m.mu.Lock()
		a, ok := m.accounts[number]
		m.mu.Unlock()
		if !ok {
			release()
			return nil, ledger.ErrAccountNotFound
		}
		select {
		case a.lock <- struct{}{}:
			held = append(held, a)
		case <-deadline.C:
			release()
			return nil, ledger.ErrBusy
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}

// appendLocked assigns the next transaction id and appends to the
// account's log. Caller holds m.mu.
func (m *Memory) appendLocked(a *memAccount, typ models.TransactionType, amount decimal.Decimal, category models.Category, transferID string, at time.Time) models.Transaction {
	m.nextTxID++
	t := models.Transaction{
		ID:            m.nextTxID,
		AccountNumber: a.acct.AccountNumber,
		Type:          typ,
		Amount:        amount,
		Category:      category,
		TransferID:    transferID,
		CreatedAt:     at,
	}
	a.log = append(a.log, t)
	return t
}

// CreateHolder stores a new holder
func (m *Memory) CreateHolder(_ context.Context, h *models.Holder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.holders[h.Username]; ok {
		return ledger.ErrHolderExists
	}
	m.nextHolderID++
	h.ID = m.nextHolderID
	h.CreatedAt = time.Now()
	cp := *h
	m.holders[h.Username] = &cp
	return nil
}

// HolderByUsername retrieves a holder by username
func (m *Memory) HolderByUsername(_ context.Context, username string) (*models.Holder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holders[username]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	cp := *h
	return &cp, nil
}

// CreateAccount stores a new account
func (m *Memory) CreateAccount(_ context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.AccountNumber]; ok {
		return ledger.ErrAccountExists
	}
	for _, existing := range m.accounts {
		if existing.acct.Holder == a.Holder {
			return ledger.ErrHolderExists
		}
	}
	a.CreatedAt = time.Now()
	m.accounts[a.AccountNumber] = &memAccount{
		lock: make(chan struct{}, 1),
		acct: *a,
	}
	return nil
}

// AccountByNumber returns a snapshot of the account
func (m *Memory) AccountByNumber(_ context.Context, number string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[number]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	cp := a.acct
	return &cp, nil
}

// AccountByHolder returns a snapshot of the holder's account
func (m *Memory) AccountByHolder(_ context.Context, holder string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.acct.Holder == holder {
			cp := a.acct
			return &cp, nil
		}
	}
	return nil, ledger.ErrAccountNotFound
}

// AccountExists reports whether an account number is taken
func (m *Memory) AccountExists(_ context.Context, number string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.accounts[number]
	return ok, nil
}

// Deposit atomically credits the account and appends the transaction
func (m *Memory) Deposit(ctx context.Context, number string, amount decimal.Decimal, category models.Category) (*models.Transaction, error) {
	release, err := m.acquire(ctx, number)
	if err != nil {
		return nil, err
	}
	defer release()

	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[number]
	if !ok { // wiped while waiting for the lock
		return nil, ledger.ErrAccountNotFound
	}
	a.acct.Balance = a.acct.Balance.Add(amount)
	t := m.appendLocked(a, models.TypeDeposit, amount, category, "", time.Now())
	return &t, nil
}

// Withdraw atomically debits the account and appends the transaction
func (m *Memory) Withdraw(ctx context.Context, number string, amount decimal.Decimal) (*models.Transaction, error) {
	release, err := m.acquire(ctx, number)
	if err != nil {
		return nil, err
	}
	defer release()

	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[number]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	if a.acct.Balance.LessThan(amount) {
		return nil, ledger.ErrInsufficientFunds
	}
	a.acct.Balance = a.acct.Balance.Sub(amount)
	t := m.appendLocked(a, models.TypeWithdrawal, amount.Neg(), models.CategoryOthers, "", time.Now())
	return &t, nil
}

// Transfer atomically moves amount between two accounts, appending one
// transaction per side. Any failure leaves both accounts untouched.
func (m *Memory) Transfer(ctx context.Context, from, to string, amount decimal.Decimal, category models.Category, transferID string) (*ledger.TransferResult, error) {
	release, err := m.acquire(ctx, from, to)
	if err != nil {
		return nil, err
	}
	defer release()

	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.accounts[from]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	dst, ok := m.accounts[to]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	if src.acct.Balance.LessThan(amount) {
		return nil, ledger.ErrInsufficientFunds
	}

	src.acct.Balance = src.acct.Balance.Sub(amount)
	dst.acct.Balance = dst.acct.Balance.Add(amount)
	now := time.Now()
	return &ledger.TransferResult{
		Out: m.appendLocked(src, models.TypeTransfer, amount.Neg(), category, transferID, now),
		In:  m.appendLocked(dst, models.TypeTransfer, amount, category, transferID, now),
	}, nil
}

func matches(t models.Transaction, f ledger.Filter) bool {
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if !f.From.IsZero() && t.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.CreatedAt.After(f.To) {
		return false
	}
	return true
}

// Transactions returns the account's matching transactions, newest
// first. The log is appended in id order, so walking it backwards
// yields created_at DESC with id as the tiebreak.
func (m *Memory) Transactions(_ context.Context, number string, f ledger.Filter) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[number]
	if !ok {
		return nil, nil
	}
	var out []models.Transaction
	for i := len(a.log) - 1; i >= 0; i-- {
		if !matches(a.log[i], f) {
			continue
		}
		out = append(out, a.log[i])
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// AuditBalances returns every account whose balance disagrees with the
// sum of its log
func (m *Memory) AuditBalances(_ context.Context) ([]ledger.Drift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.Drift
	for _, a := range m.accounts {
		sum := decimal.Zero
		for _, t := range a.log {
			sum = sum.Add(t.Amount)
		}
		if !sum.Equal(a.acct.Balance) {
			out = append(out, ledger.Drift{
				AccountNumber: a.acct.AccountNumber,
				Balance:       a.acct.Balance,
				LedgerSum:     sum,
			})
		}
	}
	return out, nil
}

// DeleteAllAccounts wipes every account and its transactions
func (m *Memory) DeleteAllAccounts(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = make(map[string]*memAccount)
	return nil
}
