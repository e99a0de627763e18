package server

import (
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"funds-transfer/internal/config"
	"funds-transfer/internal/handler"
	"funds-transfer/internal/middleware"
	"funds-transfer/internal/repository"
	"funds-transfer/internal/service"

	"github.com/gorilla/mux"
)

// NewLedgerServer wires the account ledger: the service that owns account
// state and enforces the balance and lock invariants.
func NewLedgerServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := openDatabase(cfg.GetDBConnectionString(), logger)
	if err != nil {
		return nil, err
	}

	store := repository.NewStore(db, logger)
	accountService := service.NewAccountService(store, logger)
	accountHandler := handler.NewAccountHandler(accountService)

	router := mux.NewRouter()
	router.Use(loggingMiddleware(logger))
	router.Use(metricsMiddleware)

	router.HandleFunc("/health", healthHandler(db)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/account").Subrouter()
	api.Use(middleware.RequireBearer)
	api.HandleFunc("", accountHandler.CreateAccount).Methods("POST")
	api.HandleFunc("", accountHandler.ListAccounts).Methods("GET")
	api.HandleFunc("/get-account-balance/{account_number}", accountHandler.GetBalance).Methods("GET")
	api.HandleFunc("/update-balance/{account_number}", accountHandler.UpdateBalance).Methods("PUT")
	api.HandleFunc("/update-status/{account_number}", accountHandler.UpdateStatus).Methods("PUT")
	api.HandleFunc("/{account_number}", accountHandler.GetAccount).Methods("GET")
	api.HandleFunc("/{account_number}", accountHandler.UpdateAccount).Methods("PUT")

	return &Server{
		router: router,
		db:     db,
		logger: logger,
	}, nil
}

// StartLedgerServer starts the ledger with the given configuration
func StartLedgerServer(cfg *config.Config) (*Server, string, error) {
	server, err := NewLedgerServer(cfg, newLogger(cfg))
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		return nil, "", err
	}

	return server, port, nil
}

// newLogger uses a discard logger for test servers on an ephemeral port
func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.ServerPort == "0" {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
