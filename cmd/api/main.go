package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"bankledger/internal/config"
	"bankledger/internal/handler"
	"bankledger/internal/ledger"
	"bankledger/internal/middleware"
	"bankledger/internal/notify"
	"bankledger/internal/repository"
	"bankledger/internal/service"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize storage
	var store ledger.Store
	switch cfg.Storage {
	case "memory":
		store = repository.NewMemory()
		logger.Warn("Using in-memory storage, state is not durable")
	default:
		db, err := sql.Open("postgres", cfg.DBConn)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("Failed to ping database: %v", err)
		}
		repo := repository.NewRepository(db)
		if err := repo.Migrate(context.Background()); err != nil {
			logger.Fatalf("Failed to migrate schema: %v", err)
		}
		store = repo
	}

	// Initialize layers
	engine := ledger.NewEngine(store, logger)
	alloc := ledger.NewAllocator(store)
	mailer := notify.NewMailer(cfg, logger)
	svc := service.NewService(store, engine, alloc, mailer, cfg, logger)
	h := handler.NewHandler(svc)

	// Scheduled ledger audit: every account balance must equal the sum
	// of its transaction log.
	c := cron.New()
	if _, err := c.AddFunc(cfg.AuditSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		drift, err := engine.Audit(ctx)
		if err != nil {
			logger.Errorf("Ledger audit failed: %v", err)
			return
		}
		logger.Infof("Ledger audit completed, %d account(s) drifting", len(drift))
	}); err != nil {
		logger.Fatalf("Failed to schedule audit: %v", err)
	}
	c.Start()
	defer c.Stop()

	// Setup router
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	// Protected routes
	authRouter := r.PathPrefix("/account").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("", h.Account).Methods("GET")
	authRouter.HandleFunc("/deposit", h.Deposit).Methods("POST")
	authRouter.HandleFunc("/withdraw", h.Withdraw).Methods("POST")
	authRouter.HandleFunc("/transfer", h.Transfer).Methods("POST")
	authRouter.HandleFunc("/transactions", h.Transactions).Methods("GET")
	authRouter.HandleFunc("/statement", h.Statement).Methods("GET")
	// Administrative routes
	adminRouter := r.PathPrefix("/admin").Subrouter()
	adminRouter.Use(middleware.AdminMiddleware(cfg))
	adminRouter.HandleFunc("/accounts", h.DeleteAllAccounts).Methods("DELETE")

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
