package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bankledger/internal/models"
)

// Engine executes ledger operations. It validates input, delegates the
// atomic balance-and-log mutation to the store, and logs the outcome.
type Engine struct {
	store Store
	log   *logrus.Logger
}

// NewEngine initializes a new ledger engine
func NewEngine(store Store, log *logrus.Logger) *Engine {
	return &Engine{store: store, log: log}
}

// checkAmount enforces the single amount policy used by all three
// operations: strictly positive and representable at scale 2. Zero is
// rejected, and fractional input beyond cents fails instead of being
// truncated.
func checkAmount(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return ErrInvalidAmount
	}
	return nil
}

// checkCategory applies the default and rejects values outside the
// closed set.
func checkCategory(category models.Category) (models.Category, error) {
	if category == "" {
		return models.CategoryOthers, nil
	}
	if !category.Valid() {
		return "", ErrInvalidCategory
	}
	return category, nil
}

// Deposit credits the account with amount and appends a deposit
// transaction. An empty category defaults to others.
func (e *Engine) Deposit(ctx context.Context, number string, amount decimal.Decimal, category models.Category) (*models.Transaction, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	category, err := checkCategory(category)
	if err != nil {
		return nil, err
	}

	tx, err := e.store.Deposit(ctx, number, amount, category)
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"account": number,
		"amount":  amount.StringFixed(2),
	}).Info("deposit completed")
	return tx, nil
}

// Withdraw debits the account by amount and appends a withdrawal
// transaction with the signed amount -amount. The category of a
// withdrawal is always others.
func (e *Engine) Withdraw(ctx context.Context, number string, amount decimal.Decimal) (*models.Transaction, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	tx, err := e.store.Withdraw(ctx, number, amount)
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"account": number,
		"amount":  amount.StringFixed(2),
	}).Info("withdrawal completed")
	return tx, nil
}

// Transfer moves amount from one account to the other as a single
// atomic unit: both balance updates and both transaction rows commit
// together or not at all. The two legs share a generated transfer id.
func (e *Engine) Transfer(ctx context.Context, from, to string, amount decimal.Decimal, category models.Category) (*TransferResult, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	category, err := checkCategory(category)
	if err != nil {
		return nil, err
	}
	if from == to {
		return nil, ErrSameAccount
	}

	transferID := uuid.NewString()
	res, err := e.store.Transfer(ctx, from, to, amount, category, transferID)
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"from":        from,
		"to":          to,
		"amount":      amount.StringFixed(2),
		"transfer_id": transferID,
	}).Info("transfer completed")
	return res, nil
}

// Transactions returns the account's history matching the filter,
// ordered most recent first. Running the same filter again yields
// consistent results modulo concurrent writes.
func (e *Engine) Transactions(ctx context.Context, number string, f Filter) ([]models.Transaction, error) {
	if f.Category != "" && !f.Category.Valid() {
		return nil, ErrInvalidCategory
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, fmt.Errorf("unknown transaction type %q", f.Type)
	}
	if f.Limit < 0 {
		return nil, fmt.Errorf("negative limit %d", f.Limit)
	}
	return e.store.Transactions(ctx, number, f)
}

// Audit checks the core invariant that every account balance equals the
// sum of its transaction amounts, and returns the accounts that drift.
// Each drift is logged at error level.
func (e *Engine) Audit(ctx context.Context) ([]Drift, error) {
	drift, err := e.store.AuditBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit balances: %w", err)
	}
	for _, d := range drift {
		e.log.WithFields(logrus.Fields{
			"account":    d.AccountNumber,
			"balance":    d.Balance.StringFixed(2),
			"ledger_sum": d.LedgerSum.StringFixed(2),
		}).Error("ledger drift detected")
	}
	return drift, nil
}
