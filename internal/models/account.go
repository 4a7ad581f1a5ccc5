package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a bank account. AccountNumber is a 6-digit string,
// unique across the system and immutable after creation. Each holder
// owns exactly one account. Balance is a maintained running total kept
// in sync with the transaction log by the ledger engine.
type Account struct {
	AccountNumber string          `json:"account_number"`
	Holder        string          `json:"holder"`
	Balance       decimal.Decimal `json:"balance"`
	CreatedAt     time.Time       `json:"created_at"`
}
