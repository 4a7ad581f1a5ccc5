package ledger_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bankledger/internal/ledger"
	"bankledger/internal/models"
	"bankledger/internal/repository"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newEngine(t *testing.T) (*ledger.Engine, *repository.Memory) {
	t.Helper()
	store := repository.NewMemory()
	return ledger.NewEngine(store, testLogger()), store
}

func createAccount(t *testing.T, store *repository.Memory, number, holder string) {
	t.Helper()
	err := store.CreateAccount(context.Background(), &models.Account{
		AccountNumber: number,
		Holder:        holder,
		Balance:       decimal.Zero,
	})
	if err != nil {
		t.Fatalf("CreateAccount(%s): %v", number, err)
	}
}

func balance(t *testing.T, store *repository.Memory, number string) decimal.Decimal {
	t.Helper()
	a, err := store.AccountByNumber(context.Background(), number)
	if err != nil {
		t.Fatalf("AccountByNumber(%s): %v", number, err)
	}
	return a.Balance
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// The end-to-end scenario from the ledger contract: deposit, withdraw,
// transfer, and a rejected over-withdrawal that leaves state untouched.
func TestLedgerScenario(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()
	createAccount(t, store, "100001", "alice")
	createAccount(t, store, "100002", "bob")

	tx, err := engine.Deposit(ctx, "100001", dec("100"), "")
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if !tx.Amount.Equal(dec("100")) || tx.Type != models.TypeDeposit || tx.Category != models.CategoryOthers {
		t.Fatalf("deposit transaction = %+v", tx)
	}
	if got := balance(t, store, "100001"); !got.Equal(dec("100")) {
		t.Fatalf("balance after deposit = %s, want 100", got)
	}

	tx, err = engine.Withdraw(ctx, "100001", dec("30"))
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if !tx.Amount.Equal(dec("-30")) || tx.Type != models.TypeWithdrawal {
		t.Fatalf("withdrawal transaction = %+v", tx)
	}
	if got := balance(t, store, "100001"); !got.Equal(dec("70")) {
		t.Fatalf("balance after withdrawal = %s, want 70", got)
	}

	res, err := engine.Transfer(ctx, "100001", "100002", dec("50"), models.CategoryFood)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got := balance(t, store, "100001"); !got.Equal(dec("20")) {
		t.Fatalf("source balance after transfer = %s, want 20", got)
	}
	if got := balance(t, store, "100002"); !got.Equal(dec("50")) {
		t.Fatalf("destination balance after transfer = %s, want 50", got)
	}
	if !res.Out.Amount.Equal(dec("-50")) || !res.In.Amount.Equal(dec("50")) {
		t.Fatalf("transfer legs = %s / %s", res.Out.Amount, res.In.Amount)
	}

	if _, err := engine.Withdraw(ctx, "100001", dec("1000")); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("over-withdrawal err = %v, want ErrInsufficientFunds", err)
	}
	if got := balance(t, store, "100001"); !got.Equal(dec("20")) {
		t.Fatalf("balance after failed withdrawal = %s, want 20", got)
	}

	// Balance equals the sum of the log on both accounts.
	drift, err := engine.Audit(ctx)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if len(drift) != 0 {
		t.Fatalf("audit drift = %+v, want none", drift)
	}
}

func TestAmountPolicy(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()
	createAccount(t, store, "100001", "alice")
	createAccount(t, store, "100002", "bob")

	// Zero, negative and sub-cent amounts are rejected uniformly across
	// all three operations.
	for _, amount := range []string{"0", "-5", "10.999"} {
		if _, err := engine.Deposit(ctx, "100001", dec(amount), ""); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Errorf("Deposit(%s) err = %v, want ErrInvalidAmount", amount, err)
		}
		if _, err := engine.Withdraw(ctx, "100001", dec(amount)); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Errorf("Withdraw(%s) err = %v, want ErrInvalidAmount", amount, err)
		}
		if _, err := engine.Transfer(ctx, "100001", "100002", dec(amount), ""); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Errorf("Transfer(%s) err = %v, want ErrInvalidAmount", amount, err)
		}
	}

	// Cents are fine.
	if _, err := engine.Deposit(ctx, "100001", dec("0.01"), ""); err != nil {
		t.Fatalf("Deposit(0.01): %v", err)
	}

	// Nothing but the valid deposit touched the log.
	txs, err := engine.Transactions(ctx, "100001", ledger.Filter{})
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("log length = %d, want 1", len(txs))
	}
}

func TestCategoryPolicy(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()
	createAccount(t, store, "100001", "alice")

	if _, err := engine.Deposit(ctx, "100001", dec("5"), "travel"); !errors.Is(err, ledger.ErrInvalidCategory) {
		t.Fatalf("unknown category err = %v, want ErrInvalidCategory", err)
	}
	tx, err := engine.Deposit(ctx, "100001", dec("5"), "")
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if tx.Category != models.CategoryOthers {
		t.Fatalf("default category = %s, want others", tx.Category)
	}
}

func TestTransferErrors(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()
	createAccount(t, store, "100001", "alice")
	createAccount(t, store, "100002", "bob")
	if _, err := engine.Deposit(ctx, "100001", dec("40"), ""); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	if _, err := engine.Transfer(ctx, "100001", "100001", dec("10"), ""); !errors.Is(err, ledger.ErrSameAccount) {
		t.Fatalf("self transfer err = %v, want ErrSameAccount", err)
	}
	if _, err := engine.Transfer(ctx, "100001", "999999", dec("10"), ""); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("unknown recipient err = %v, want ErrAccountNotFound", err)
	}
	if _, err := engine.Transfer(ctx, "100001", "100002", dec("100"), ""); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("overdraft transfer err = %v, want ErrInsufficientFunds", err)
	}

	// No failed attempt moved money or wrote a log row.
	if got := balance(t, store, "100001"); !got.Equal(dec("40")) {
		t.Fatalf("source balance = %s, want 40", got)
	}
	if got := balance(t, store, "100002"); !got.Equal(dec("0")) {
		t.Fatalf("destination balance = %s, want 0", got)
	}
	txs, _ := engine.Transactions(ctx, "100002", ledger.Filter{})
	if len(txs) != 0 {
		t.Fatalf("destination log = %+v, want empty", txs)
	}
}

func TestTransferLegsLinked(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()
	createAccount(t, store, "100001", "alice")
	createAccount(t, store, "100002", "bob")
	if _, err := engine.Deposit(ctx, "100001", dec("25"), ""); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	res, err := engine.Transfer(ctx, "100001", "100002", dec("25"), models.CategoryUtilities)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if res.Out.TransferID == "" || res.Out.TransferID != res.In.TransferID {
		t.Fatalf("transfer ids = %q / %q, want equal and non-empty", res.Out.TransferID, res.In.TransferID)
	}
	if res.Out.Type != models.TypeTransfer || res.In.Type != models.TypeTransfer {
		t.Fatalf("leg types = %s / %s", res.Out.Type, res.In.Type)
	}
	if res.Out.Category != models.CategoryUtilities || res.In.Category != models.CategoryUtilities {
		t.Fatalf("leg categories = %s / %s", res.Out.Category, res.In.Category)
	}
	if res.Out.ID == res.In.ID {
		t.Fatalf("legs share transaction id %d, want independent rows", res.Out.ID)
	}
}

// Two opposite-direction transfers running at once must not deadlock,
// and equal amounts must leave both balances where they started.
func TestConcurrentOppositeTransfers(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()
	createAccount(t, store, "100001", "alice")
	createAccount(t, store, "100002", "bob")
	if _, err := engine.Deposit(ctx, "100001", dec("1000"), ""); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if _, err := engine.Deposit(ctx, "100002", dec("1000"), ""); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2 * rounds)
	for i := 0; i < rounds; i++ {
		go func() {
			defer wg.Done()
			if _, err := engine.Transfer(ctx, "100001", "100002", dec("3"), ""); err != nil {
				t.Errorf("A->B transfer: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := engine.Transfer(ctx, "100002", "100001", dec("3"), ""); err != nil {
				t.Errorf("B->A transfer: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := balance(t, store, "100001"); !got.Equal(dec("1000")) {
		t.Fatalf("A balance = %s, want 1000", got)
	}
	if got := balance(t, store, "100002"); !got.Equal(dec("1000")) {
		t.Fatalf("B balance = %s, want 1000", got)
	}
	drift, err := engine.Audit(ctx)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if len(drift) != 0 {
		t.Fatalf("audit drift = %+v, want none", drift)
	}
}

// Concurrent single-account operations serialize: no update is lost
// and the balance matches the log exactly.
func TestConcurrentDeposits(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()
	createAccount(t, store, "100001", "alice")

	const workers = 100
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := engine.Deposit(ctx, "100001", dec("1"), ""); err != nil {
				t.Errorf("Deposit: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := balance(t, store, "100001"); !got.Equal(dec("100")) {
		t.Fatalf("balance = %s, want 100", got)
	}
	txs, err := engine.Transactions(ctx, "100001", ledger.Filter{})
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(txs) != workers {
		t.Fatalf("log length = %d, want %d", len(txs), workers)
	}
}
