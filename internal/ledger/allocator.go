package ledger

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

// Account numbers are 6 decimal digits, 100000 through 999999.
const (
	numberSpace   = 900000
	numberOffset  = 100000
	allocAttempts = 64
)

// Allocator generates unique account numbers. Candidates are drawn at
// random and checked against the store; the attempt budget bounds the
// retry loop so allocation fails with ErrAllocationExhausted instead of
// spinning when the number space fills up.
type Allocator struct {
	store    Store
	attempts int
}

// NewAllocator initializes a new account number allocator
func NewAllocator(store Store) *Allocator {
	return &Allocator{store: store, attempts: allocAttempts}
}

// Allocate returns an account number not currently in use. The check is
// read-only: uniqueness is ultimately enforced by the store when the
// account is created, and a caller losing that race retries allocation.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	for i := 0; i < a.attempts; i++ {
		number, err := randomAccountNumber()
		if err != nil {
			return "", fmt.Errorf("generate account number: %w", err)
		}
		exists, err := a.store.AccountExists(ctx, number)
		if err != nil {
			return "", fmt.Errorf("check account number: %w", err)
		}
		if !exists {
			return number, nil
		}
	}
	return "", ErrAllocationExhausted
}

func randomAccountNumber() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(numberSpace))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+numberOffset), nil
}
