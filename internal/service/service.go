package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"bankledger/internal/config"
	"bankledger/internal/export"
	"bankledger/internal/ledger"
	"bankledger/internal/models"
	"bankledger/internal/notify"
)

// Account creation retries a few times when an allocated number is
// taken by a concurrent registration before the insert lands.
const createAttempts = 4

// Service handles business logic. It resolves the authenticated
// holder's account and performs the ownership check explicitly before
// invoking the ledger engine; the engine itself only re-validates
// account existence.
type Service struct {
	store  ledger.Store
	engine *ledger.Engine
	alloc  *ledger.Allocator
	mailer *notify.Mailer
	config *config.Config
	log    *logrus.Logger
}

// NewService initializes a new service
func NewService(store ledger.Store, engine *ledger.Engine, alloc *ledger.Allocator, mailer *notify.Mailer, cfg *config.Config, log *logrus.Logger) *Service {
	return &Service{store: store, engine: engine, alloc: alloc, mailer: mailer, config: cfg, log: log}
}

// Register creates a new holder with a hashed password and opens their
// account with a freshly allocated number and a zero balance.
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.Holder, *models.Account, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	holder := &models.Holder{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
	}
	if err := s.store.CreateHolder(ctx, holder); err != nil {
		return nil, nil, err
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		number, err := s.alloc.Allocate(ctx)
		if err != nil {
			return nil, nil, err
		}
		account := &models.Account{
			AccountNumber: number,
			Holder:        username,
			Balance:       decimal.Zero,
		}
		err = s.store.CreateAccount(ctx, account)
		if errors.Is(err, ledger.ErrAccountExists) {
			continue // lost the allocation race, redraw
		}
		if err != nil {
			return nil, nil, err
		}
		s.log.Infof("Holder registered: %s, account %s", username, number)
		return holder, account, nil
	}
	return nil, nil, ledger.ErrAllocationExhausted
}

// Login authenticates a holder and returns a JWT token
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	holder, err := s.store.HolderByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(holder.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   holder.Username,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("Holder logged in: %s", username)
	return tokenString, nil
}

// Account returns the authenticated holder's account
func (s *Service) Account(ctx context.Context, username string) (*models.Account, error) {
	return s.store.AccountByHolder(ctx, username)
}

// Deposit credits the holder's own account
func (s *Service) Deposit(ctx context.Context, username string, amount decimal.Decimal, category models.Category) (*models.Transaction, error) {
	account, err := s.store.AccountByHolder(ctx, username)
	if err != nil {
		return nil, err
	}
	t, err := s.engine.Deposit(ctx, account.AccountNumber, amount, category)
	if err != nil {
		return nil, err
	}
	s.notifyHolder(ctx, username, t)
	return t, nil
}

// Withdraw debits the holder's own account
func (s *Service) Withdraw(ctx context.Context, username string, amount decimal.Decimal) (*models.Transaction, error) {
	account, err := s.store.AccountByHolder(ctx, username)
	if err != nil {
		return nil, err
	}
	t, err := s.engine.Withdraw(ctx, account.AccountNumber, amount)
	if err != nil {
		return nil, err
	}
	s.notifyHolder(ctx, username, t)
	return t, nil
}

// Transfer moves amount from the holder's account to the recipient
// account. Both sides are notified when mail is configured.
func (s *Service) Transfer(ctx context.Context, username, recipientNumber string, amount decimal.Decimal, category models.Category) (*ledger.TransferResult, error) {
	account, err := s.store.AccountByHolder(ctx, username)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Transfer(ctx, account.AccountNumber, recipientNumber, amount, category)
	if err != nil {
		return nil, err
	}
	s.notifyHolder(ctx, username, &res.Out)
	if recipient, err := s.store.AccountByNumber(ctx, recipientNumber); err == nil {
		s.notifyHolder(ctx, recipient.Holder, &res.In)
	}
	return res, nil
}

// notifyHolder sends a best-effort transaction notice; failures are
// logged by the mailer and never propagate.
func (s *Service) notifyHolder(ctx context.Context, username string, t *models.Transaction) {
	if s.mailer == nil || !s.mailer.Enabled() {
		return
	}
	holder, err := s.store.HolderByUsername(ctx, username)
	if err != nil {
		return
	}
	account, err := s.store.AccountByNumber(ctx, t.AccountNumber)
	if err != nil {
		return
	}
	_ = s.mailer.TransactionNotice(holder.Email, holder.Username, t, account.Balance)
}

// Transactions returns the holder's filtered history, newest first
func (s *Service) Transactions(ctx context.Context, username string, f ledger.Filter) ([]models.Transaction, error) {
	account, err := s.store.AccountByHolder(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.engine.Transactions(ctx, account.AccountNumber, f)
}

// Statement renders the holder's filtered history as an XML statement
// document and returns the document plus its suggested filename.
func (s *Service) Statement(ctx context.Context, username string, f ledger.Filter) ([]byte, string, error) {
	account, err := s.store.AccountByHolder(ctx, username)
	if err != nil {
		return nil, "", err
	}
	transactions, err := s.engine.Transactions(ctx, account.AccountNumber, f)
	if err != nil {
		return nil, "", err
	}
	doc, err := export.Statement(account.AccountNumber, transactions)
	if err != nil {
		return nil, "", err
	}
	return doc, fmt.Sprintf("transactions_%s.xml", account.AccountNumber), nil
}

// DeleteAllAccounts is the administrative bulk wipe: every account and
// its transactions are removed in one cascading unit. Holders survive.
func (s *Service) DeleteAllAccounts(ctx context.Context) error {
	if err := s.store.DeleteAllAccounts(ctx); err != nil {
		return err
	}
	s.log.Warn("All accounts deleted by administrative request")
	return nil
}
