package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"bankledger/internal/models"
)

// Filter narrows a transaction history query. Zero values mean "no
// constraint". All set fields combine with AND. From and To are both
// inclusive. Limit of zero returns everything.
type Filter struct {
	Category models.Category
	Type     models.TransactionType
	From     time.Time
	To       time.Time
	Limit    int
}

// TransferResult holds the two legs written by a transfer: Out is the
// debit on the source account, In the credit on the destination. Both
// share the same TransferID and commit together or not at all.
type TransferResult struct {
	Out models.Transaction `json:"out"`
	In  models.Transaction `json:"in"`
}

// Drift is an account whose materialized balance disagrees with the sum
// of its transaction log. A healthy ledger reports none.
type Drift struct {
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
	LedgerSum     decimal.Decimal `json:"ledger_sum"`
}

// Store is the durable state behind the ledger engine. Every mutating
// money-movement method must execute as one atomic unit: the balance
// check, the balance update and the log append commit together or not
// at all. Two operations touching the same account are serialized; a
// lock that cannot be acquired in time surfaces as ErrBusy.
//
// Implementations: Postgres-backed (internal/repository.Repository) and
// in-memory (internal/repository.Memory).
type Store interface {
	// CreateHolder stores a new holder, filling ID and CreatedAt.
	// Returns ErrHolderExists on a username collision.
	CreateHolder(ctx context.Context, h *models.Holder) error

	// HolderByUsername returns the holder or ErrAccountNotFound.
	HolderByUsername(ctx context.Context, username string) (*models.Holder, error)

	// CreateAccount stores a new account, filling CreatedAt. Returns
	// ErrAccountExists when the account number is already taken.
	CreateAccount(ctx context.Context, a *models.Account) error

	// AccountByNumber returns a snapshot of the account or ErrAccountNotFound.
	AccountByNumber(ctx context.Context, number string) (*models.Account, error)

	// AccountByHolder returns the holder's single account or ErrAccountNotFound.
	AccountByHolder(ctx context.Context, holder string) (*models.Account, error)

	// AccountExists reports whether an account number is taken.
	AccountExists(ctx context.Context, number string) (bool, error)

	// Deposit atomically credits the account and appends the transaction.
	Deposit(ctx context.Context, number string, amount decimal.Decimal, category models.Category) (*models.Transaction, error)

	// Withdraw atomically debits the account and appends the transaction.
	// Fails with ErrInsufficientFunds when the balance is too low, leaving
	// state unchanged.
	Withdraw(ctx context.Context, number string, amount decimal.Decimal) (*models.Transaction, error)

	// Transfer atomically moves amount from one account to the other and
	// appends one transaction per side, both tagged with transferID.
	// Account locks are acquired in ascending account-number order.
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal, category models.Category, transferID string) (*TransferResult, error)

	// Transactions returns the account's transactions matching the
	// filter, newest first. Reads see a consistent snapshot.
	Transactions(ctx context.Context, number string, f Filter) ([]models.Transaction, error)

	// AuditBalances returns every account whose balance does not equal
	// the sum of its transaction amounts.
	AuditBalances(ctx context.Context) ([]Drift, error)

	// DeleteAllAccounts removes every account and, by cascade, every
	// transaction. Holders are kept. Administrative use only.
	DeleteAllAccounts(ctx context.Context) error
}
