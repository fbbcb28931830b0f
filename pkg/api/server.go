// Package api exposes the ledger over HTTP under /api/v1.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"account-ledger/pkg/ledger"
	"account-ledger/pkg/logging"
	"account-ledger/pkg/metrics"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Prefix is the path prefix of every ledger route.
const Prefix = "/api/v1"

// Ledger is the subset of *ledger.Core the HTTP layer depends on.
type Ledger interface {
	Apply(ctx context.Context, accountID string, amount decimal.Decimal) (ledger.Transaction, error)
	CreateAccount(ctx context.Context, accountID string, amount decimal.Decimal) (ledger.Account, error)
	Account(ctx context.Context, accountID string) (ledger.Account, error)
	Transaction(ctx context.Context, transactionID string) (ledger.Transaction, error)
	Transactions(ctx context.Context) ([]ledger.Transaction, error)
	Ping(ctx context.Context) error
}

// Server serves the ledger REST API and operational endpoints.
type Server struct {
	ledger  Ledger
	metrics metrics.MetricsCollector
	logger  *logging.Logger
	handler http.Handler
	server  *http.Server
	config  ServerConfig
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Address to listen on (e.g., ":3000")
	Address string

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses
	WriteTimeout time.Duration

	// IdleTimeout for keep-alive connections
	IdleTimeout time.Duration

	// RequestTimeout bounds every ledger call made by a handler
	RequestTimeout time.Duration

	// MaxBodyBytes caps request bodies
	MaxBodyBytes int64

	// AllowedOrigins enables CORS for the listed origins; empty disables CORS
	AllowedOrigins []string

	// MetricsHandler serves /metrics (usually promhttp.HandlerFor)
	MetricsHandler http.Handler

	// EnablePprof enables Go profiling endpoints at /debug/pprof/*
	EnablePprof bool
}

// DefaultServerConfig returns a default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:        ":3000",
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 5 * time.Second,
		MaxBodyBytes:   1 << 20,
		AllowedOrigins: []string{"*"},
	}
}

// NewServer creates a new API server. collector and logger may be nil.
func NewServer(l Ledger, collector metrics.MetricsCollector, logger *logging.Logger, config ServerConfig) *Server {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	if logger == nil {
		logger = logging.L()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultServerConfig().RequestTimeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultServerConfig().MaxBodyBytes
	}

	s := &Server{
		ledger:  l,
		metrics: collector,
		logger:  logger.Named("api"),
		config:  config,
	}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware, s.instrumentMiddleware)
	// mux skips Use middleware when no route matches.
	r.NotFoundHandler = requestIDMiddleware(s.instrumentMiddleware(http.HandlerFunc(s.handleNotFound)))
	r.MethodNotAllowedHandler = requestIDMiddleware(s.instrumentMiddleware(http.HandlerFunc(s.handleMethodNotAllowed)))

	// Ledger endpoints
	r.HandleFunc(Prefix+"/accounts", s.handleCreateAccount).Methods(http.MethodPost)
	r.HandleFunc(Prefix+"/accounts/", s.handleMissingAccountID).Methods(http.MethodGet)
	r.HandleFunc(Prefix+"/accounts/{account_id}", s.handleGetAccount).Methods(http.MethodGet)
	r.HandleFunc(Prefix+"/transactions", s.handleListTransactions).Methods(http.MethodGet)
	r.HandleFunc(Prefix+"/transactions/", s.handleListTransactions).Methods(http.MethodGet)
	r.HandleFunc(Prefix+"/transactions", s.handleApply).Methods(http.MethodPost)
	r.HandleFunc(Prefix+"/transactions/", s.handleApply).Methods(http.MethodPost)
	r.HandleFunc(Prefix+"/transactions/{transaction_id}", s.handleGetTransaction).Methods(http.MethodGet)
	r.HandleFunc(Prefix+"/ping", s.handlePing).Methods(http.MethodGet)

	// Metrics endpoints
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/metrics/json", s.handleMetricsJSON).Methods(http.MethodGet)

	if config.EnablePprof {
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
	}

	var h http.Handler = r
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(true),
	)(h)
	if len(config.AllowedOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(config.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type", RequestIDHeader}),
			handlers.ExposedHeaders([]string{RequestIDHeader}),
		)(h)
	}
	s.handler = h

	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      h,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe blocks serving HTTP until Stop is called.
// A graceful stop returns nil.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", zap.String("addr", s.config.Address))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: serve %s: %w", s.config.Address, err)
	}
	return nil
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	go func() {
		if err := s.ListenAndServe(); err != nil {
			s.logger.Error("server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleMetrics serves Prometheus text format when a handler is configured.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.config.MetricsHandler != nil {
		s.config.MetricsHandler.ServeHTTP(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "# Prometheus metrics are disabled\n")
}

// handleMetricsJSON returns the in-memory metrics snapshot.
func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	if mc, ok := s.metrics.(interface{ SnapshotJSON() interface{} }); ok {
		writeJSON(w, http.StatusOK, mc.SnapshotJSON())
		return
	}

	writeJSON(w, http.StatusNotFound, errorResponse{
		Error: "metrics collector does not support JSON snapshots",
		Code:  ledger.KindNotFound.String(),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{
		Error: "no route for " + r.URL.Path,
		Code:  ledger.KindNotFound.String(),
	})
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{
		Error: r.Method + " is not allowed on " + r.URL.Path,
		Code:  "method_not_allowed",
	})
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// recoveryLogger routes handler panics to zap.
type recoveryLogger struct {
	logger *logging.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("handler panic", zap.String("panic", fmt.Sprint(v...)))
}
