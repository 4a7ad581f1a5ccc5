// Package ledger implements the transactional core of the bank: atomic
// deposit, withdrawal and transfer operations, the filterable read path
// over the transaction log, account number allocation, and the balance
// audit. Storage backends implement the Store interface; all business
// validation happens here.
package ledger

import "errors"

// Domain errors. Handlers at the HTTP boundary map each of these to a
// distinct status code so callers can show an actionable message.
var (
	// ErrInvalidAmount is returned when an amount is not positive or is
	// not representable with two decimal places.
	ErrInvalidAmount = errors.New("amount must be positive with at most two decimal places")

	// ErrInvalidCategory is returned for a category outside the closed set.
	ErrInvalidCategory = errors.New("unknown transaction category")

	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountNotFound is returned when the target or recipient account
	// does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrSameAccount is returned for a transfer whose source and
	// destination are the same account.
	ErrSameAccount = errors.New("cannot transfer to the same account")

	// ErrAllocationExhausted is returned when no free account number was
	// found within the allocator's retry budget.
	ErrAllocationExhausted = errors.New("no free account number available")

	// ErrBusy is returned when a lock on an account could not be acquired
	// in time. The operation left no state change and may be retried.
	ErrBusy = errors.New("account is busy, retry the operation")

	// ErrAccountExists is returned by stores on an account number
	// collision. The allocator treats it as a lost race and retries.
	ErrAccountExists = errors.New("account number already in use")

	// ErrHolderExists is returned when registering a username that is
	// already taken.
	ErrHolderExists = errors.New("holder already exists")
)
