// Package repository provides the storage backends behind the ledger:
// a Postgres implementation used in production and an in-memory
// implementation used for tests and development.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"bankledger/internal/ledger"
	"bankledger/internal/models"
)

// Repository is the Postgres-backed ledger.Store. Money movement runs
// inside a database transaction with the affected account rows locked
// via SELECT ... FOR UPDATE, so concurrent operations on the same
// account serialize and the balance update always commits together
// with the log append.
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Row locks are bounded so a contended operation fails fast with
// ErrBusy instead of hanging.
const lockTimeout = "3s"

// begin opens a transaction with the lock acquisition timeout applied.
func (r *Repository) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%s'", lockTimeout)); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}
	return tx, nil
}

// translate maps Postgres error codes onto domain errors.
func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "lock_not_available":
			return ledger.ErrBusy
		case "unique_violation":
			if strings.Contains(pqErr.Constraint, "holder") || strings.Contains(pqErr.Constraint, "username") {
				return ledger.ErrHolderExists
			}
			return ledger.ErrAccountExists
		}
	}
	return err
}

// CreateHolder creates a new holder in the database
func (r *Repository) CreateHolder(ctx context.Context, h *models.Holder) error {
	query := `
		INSERT INTO bank.holders (username, email, password_hash, created_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, h.Username, h.Email, h.PasswordHash).
		Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		if err = translate(err); errors.Is(err, ledger.ErrHolderExists) {
			return err
		}
		return fmt.Errorf("failed to create holder: %w", err)
	}
	return nil
}

// HolderByUsername retrieves a holder by username
func (r *Repository) HolderByUsername(ctx context.Context, username string) (*models.Holder, error) {
	h := &models.Holder{}
	query := `
		SELECT id, username, email, password_hash, created_at
		FROM bank.holders
		WHERE username = $1`
	err := r.db.QueryRowContext(ctx, query, username).
		Scan(&h.ID, &h.Username, &h.Email, &h.PasswordHash, &h.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find holder: %w", err)
	}
	return h, nil
}

// CreateAccount creates a new account with a zero-initialized balance
// unless one is set on the model.
func (r *Repository) CreateAccount(ctx context.Context, a *models.Account) error {
	query := `
		INSERT INTO bank.accounts (account_number, holder, balance, created_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query, a.AccountNumber, a.Holder, a.Balance).
		Scan(&a.CreatedAt)
	if err != nil {
		if err = translate(err); errors.Is(err, ledger.ErrAccountExists) || errors.Is(err, ledger.ErrHolderExists) {
			return err
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// AccountByNumber retrieves an account by its account number
func (r *Repository) AccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	return r.findAccount(ctx, "account_number", number)
}

// AccountByHolder retrieves the holder's single account
func (r *Repository) AccountByHolder(ctx context.Context, holder string) (*models.Account, error) {
	return r.findAccount(ctx, "holder", holder)
}

func (r *Repository) findAccount(ctx context.Context, column, value string) (*models.Account, error) {
	a := &models.Account{}
	query := fmt.Sprintf(`
		SELECT account_number, holder, balance, created_at
		FROM bank.accounts
		WHERE %s = $1`, column)
	err := r.db.QueryRowContext(ctx, query, value).
		Scan(&a.AccountNumber, &a.Holder, &a.Balance, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return a, nil
}

// AccountExists reports whether an account number is taken
func (r *Repository) AccountExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM bank.accounts WHERE account_number = $1)`
	if err := r.db.QueryRowContext(ctx, query, number).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check account number: %w", err)
	}
	return exists, nil
}

// lockAccount takes the row lock for the account and returns its
// current balance, or ErrAccountNotFound / ErrBusy.
func lockAccount(ctx context.Context, tx *sql.Tx, number string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	query := `SELECT balance FROM bank.accounts WHERE account_number = $1 FOR UPDATE`
	err := tx.QueryRowContext(ctx, query, number).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Decimal{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return decimal.Decimal{}, translate(err)
	}
	return balance, nil
}

func setBalance(ctx context.Context, tx *sql.Tx, number string, balance decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE bank.accounts SET balance = $1 WHERE account_number = $2`, balance, number)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, t *models.Transaction) error {
	query := `
		INSERT INTO bank.transactions (account_number, type, amount, category, transfer_id, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := tx.QueryRowContext(ctx, query,
		t.AccountNumber, string(t.Type), t.Amount, string(t.Category), t.TransferID).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// Deposit atomically credits the account and appends the transaction
func (r *Repository) Deposit(ctx context.Context, number string, amount decimal.Decimal, category models.Category) (*models.Transaction, error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	balance, err := lockAccount(ctx, tx, number)
	if err != nil {
		return nil, err
	}
	if err := setBalance(ctx, tx, number, balance.Add(amount)); err != nil {
		return nil, err
	}

	t := &models.Transaction{
		AccountNumber: number,
		Type:          models.TypeDeposit,
		Amount:        amount,
		Category:      category,
	}
	if err := insertTransaction(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit deposit: %w", translate(err))
	}
	return t, nil
}

// Withdraw atomically debits the account and appends the transaction.
// The funds check runs under the row lock, so the balance seen is the
// committed one and can never be debited below zero.
func (r *Repository) Withdraw(ctx context.Context, number string, amount decimal.Decimal) (*models.Transaction, error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	balance, err := lockAccount(ctx, tx, number)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(amount) {
		return nil, ledger.ErrInsufficientFunds
	}
	if err := setBalance(ctx, tx, number, balance.Sub(amount)); err != nil {
		return nil, err
	}

	t := &models.Transaction{
		AccountNumber: number,
		Type:          models.TypeWithdrawal,
		Amount:        amount.Neg(),
		Category:      models.CategoryOthers,
	}
	if err := insertTransaction(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit withdrawal: %w", translate(err))
	}
	return t, nil
}

// Transfer atomically moves amount between two accounts and appends
// one transaction per side. Rows are locked in ascending account
// number order so two opposite-direction transfers cannot deadlock.
func (r *Repository) Transfer(ctx context.Context, from, to string, amount decimal.Decimal, category models.Category, transferID string) (*ledger.TransferResult, error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	first, second := from, to
	if second < first {
		first, second = second, first
	}
	balances := make(map[string]decimal.Decimal, 2)
	for _, number := range []string{first, second} {
		balance, err := lockAccount(ctx, tx, number)
		if err != nil {
			return nil, err
		}
		balances[number] = balance
	}

	if balances[from].LessThan(amount) {
		return nil, ledger.ErrInsufficientFunds
	}
	if err := setBalance(ctx, tx, from, balances[from].Sub(amount)); err != nil {
		return nil, err
	}
	if err := setBalance(ctx, tx, to, balances[to].Add(amount)); err != nil {
		return nil, err
	}

	res := &ledger.TransferResult{
		Out: models.Transaction{
			AccountNumber: from,
			Type:          models.TypeTransfer,
			Amount:        amount.Neg(),
			Category:      category,
			TransferID:    transferID,
		},
		In: models.Transaction{
			AccountNumber: to,
			Type:          models.TypeTransfer,
			Amount:        amount,
			Category:      category,
			TransferID:    transferID,
		},
	}
	if err := insertTransaction(ctx, tx, &res.Out); err != nil {
		return nil, err
	}
	if err := insertTransaction(ctx, tx, &res.In); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transfer: %w", translate(err))
	}
	return res, nil
}

// Transactions retrieves the account's transactions matching the
// filter, most recent first
func (r *Repository) Transactions(ctx context.Context, number string, f ledger.Filter) ([]models.Transaction, error) {
	query := `
		SELECT id, account_number, type, amount, category, COALESCE(transfer_id::text, ''), created_at
		FROM bank.transactions
		WHERE account_number = $1`
	args := []any{number}

	if f.Category != "" {
		args = append(args, string(f.Category))
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.AccountNumber, &t.Type, &t.Amount, &t.Category, &t.TransferID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	return out, nil
}

// AuditBalances returns every account whose materialized balance
// disagrees with the sum of its transaction amounts
func (r *Repository) AuditBalances(ctx context.Context) ([]ledger.Drift, error) {
	query := `
		SELECT a.account_number, a.balance, COALESCE(SUM(t.amount), 0)
		FROM bank.accounts a
		LEFT JOIN bank.transactions t ON t.account_number = a.account_number
		GROUP BY a.account_number, a.balance
		HAVING a.balance <> COALESCE(SUM(t.amount), 0)`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to audit balances: %w", err)
	}
	defer rows.Close()

	var out []ledger.Drift
	for rows.Next() {
		var d ledger.Drift
		if err := rows.Scan(&d.AccountNumber, &d.Balance, &d.LedgerSum); err != nil {
			return nil, fmt.Errorf("failed to scan drift: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read drift: %w", err)
	}
	return out, nil
}

// DeleteAllAccounts removes every account; transactions go with them
// via ON DELETE CASCADE. Holders are kept.
func (r *Repository) DeleteAllAccounts(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM bank.accounts`); err != nil {
		return fmt.Errorf("failed to delete accounts: %w", err)
	}
	return nil
}
