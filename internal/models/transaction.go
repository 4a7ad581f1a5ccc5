package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType identifies the kind of ledger operation that produced
// a transaction.
type TransactionType string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
	TypeTransfer   TransactionType = "transfer"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeTransfer:
		return true
	}
	return false
}

// Category is a closed classification tag attached to a transaction for
// reporting and filtering.
type Category string

const (
	CategoryFood          Category = "food"
	CategoryEntertainment Category = "entertainment"
	CategoryUtilities     Category = "utilities"
	CategoryOthers        Category = "others"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryFood, CategoryEntertainment, CategoryUtilities, CategoryOthers:
		return true
	}
	return false
}

// Transaction represents one immutable entry in an account's ledger.
// Amount is signed: positive credits the account, negative debits it.
// The two legs of a transfer are stored as independent transactions
// that share a TransferID.
type Transaction struct {
	ID            int64           `json:"id"`
	AccountNumber string          `json:"account_number"`
	Type          TransactionType `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Category      Category        `json:"category"`
	TransferID    string          `json:"transfer_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
