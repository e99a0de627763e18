package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"funds-transfer/internal/config"
	"funds-transfer/internal/handler"
	"funds-transfer/internal/ledgerclient"
	"funds-transfer/internal/middleware"
	"funds-transfer/internal/notifications"
	"funds-transfer/internal/repository"
	"funds-transfer/internal/service"
)

// NewOrchestratorServer wires the transfer orchestrator: the saga coordinator
// that owns the transaction store and reaches account state only through the
// ledger client.
func NewOrchestratorServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := openDatabase(cfg.GetDBConnectionString(), logger)
	if err != nil {
		return nil, err
	}

	store := repository.NewStore(db, logger)
	ledger := ledgerclient.New(cfg.LedgerBaseURL, cfg.LedgerTimeout, logger)
	notifier := notifications.NewWebhookNotifier(cfg.WebhookURL, logger)

	transactionService := service.NewTransactionService(
		ledger,
		store.Transaction(),
		notifier,
		cfg.SagaDeadline,
		logger,
	)
	transactionHandler := handler.NewTransactionHandler(transactionService)

	router := mux.NewRouter()
	router.Use(loggingMiddleware(logger))
	router.Use(metricsMiddleware)

	router.HandleFunc("/health", healthHandler(db)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api/transaction").Subrouter()
	api.Use(middleware.RequireBearer)

	srv := &Server{
		router: router,
		db:     db,
		logger: logger,
	}

	// The transfer endpoint gets idempotency protection when redis is
	// configured; everything else is naturally safe to retry.
	var transfer http.Handler = http.HandlerFunc(transactionHandler.Transfer)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("Redis unreachable, idempotency middleware still enabled", "error", err)
		}
		transfer = middleware.Idempotency(rdb, logger)(transfer)
		srv.closers = append(srv.closers, rdb.Close)
	}

	api.Handle("/transfer", transfer).Methods("POST")
	api.HandleFunc("/account/{account_id}/filtered", transactionHandler.GetFilteredAccountTransactions).Methods("GET")
	api.HandleFunc("/account/{account_id}", transactionHandler.GetAccountTransactions).Methods("GET")
	api.HandleFunc("/{transaction_id}/cancel", transactionHandler.CancelTransaction).Methods("POST")
	api.HandleFunc("/{transaction_id}", transactionHandler.GetTransaction).Methods("GET")

	return srv, nil
}

// StartOrchestratorServer starts the orchestrator with the given configuration
func StartOrchestratorServer(cfg *config.Config) (*Server, string, error) {
	server, err := NewOrchestratorServer(cfg, newLogger(cfg))
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		return nil, "", err
	}

	return server, port, nil
}
