package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"account-ledger/pkg/ledger"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// errUnsupportedMediaType is answered with 415.
var errUnsupportedMediaType = errors.New("api: content type must be application/json")

// amountRequest is the body of POST /accounts and POST /transactions.
// Amount stays raw so strings and null can be told apart from numbers.
type amountRequest struct {
	AccountID *string         `json:"account_id"`
	Amount    json.RawMessage `json:"amount"`
}

// handleCreateAccount opens an account with a non-negative balance.
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_account"

	accountID, amount, err := s.decodeAmountRequest(w, r, op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if amount.IsNegative() {
		s.writeError(w, r, ledger.Validation(op, ledger.ErrInvalidAmount, "amount must not be negative"))
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	account, err := s.ledger.CreateAccount(ctx, accountID, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// handleGetAccount returns one account by id.
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("api.get_account", "account_id", mux.Vars(r)["account_id"], ledger.ErrInvalidAccountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	account, err := s.ledger.Account(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleMissingAccountID(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, ledger.Validation("api.get_account", ledger.ErrMissingField, "account_id"))
}

// handleListTransactions returns every transaction in creation order.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	txs, err := s.ledger.Transactions(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []ledger.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// handleApply applies a signed amount to an account, opening it if needed.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	const op = "api.apply"

	accountID, amount, err := s.decodeAmountRequest(w, r, op)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	tx, err := s.ledger.Apply(ctx, accountID, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// handleGetTransaction returns one transaction by id.
func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("api.get_transaction", "transaction_id", mux.Vars(r)["transaction_id"], ledger.ErrInvalidTransactionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	tx, err := s.ledger.Transaction(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// handlePing reports whether the stores answer.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.ledger.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.config.RequestTimeout)
}

// decodeAmountRequest reads and validates {account_id, amount}.
// The returned account id is the canonical UUID form.
func (s *Server) decodeAmountRequest(w http.ResponseWriter, r *http.Request, op string) (string, decimal.Decimal, error) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return "", decimal.Zero, errUnsupportedMediaType
		}
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))

	var req amountRequest
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return "", decimal.Zero, ledger.Validation(op, ledger.ErrMissingField, "request body is empty")
		}
		return "", decimal.Zero, ledger.Validation(op, ledger.ErrMissingField, "request body is not a JSON object")
	}
	if dec.More() {
		return "", decimal.Zero, ledger.Validation(op, ledger.ErrMissingField, "request body has trailing data")
	}

	if req.AccountID == nil {
		return "", decimal.Zero, ledger.Validation(op, ledger.ErrMissingField, "account_id")
	}
	accountID, err := parseID(op, "account_id", *req.AccountID, ledger.ErrInvalidAccountID)
	if err != nil {
		return "", decimal.Zero, err
	}

	amount, err := parseAmount(op, req.Amount)
	if err != nil {
		return "", decimal.Zero, err
	}
	return accountID, amount, nil
}

// parseAmount accepts a JSON number within the ledger's amount bounds.
func parseAmount(op string, raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Zero, ledger.Validation(op, ledger.ErrMissingField, "amount")
	}
	if raw[0] == '"' {
		return decimal.Zero, ledger.Validation(op, ledger.ErrInvalidAmount, "amount must be a number")
	}
	amount, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, ledger.Validation(op, ledger.ErrInvalidAmount, "amount must be a number")
	}
	if !ledger.ValidAmount(amount) {
		return decimal.Zero, ledger.Validation(op, ledger.ErrInvalidAmount, "amount is out of range")
	}
	return amount, nil
}

// parseID validates a UUID and returns its canonical form.
func parseID(op, field, raw string, invalid error) (string, error) {
	if raw == "" {
		return "", ledger.Validation(op, ledger.ErrMissingField, field)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", ledger.Validation(op, invalid, field+" must be a UUID")
	}
	return id.String(), nil
}

// writeError maps err to its status code and writes the error body.
// Internal errors are logged and answered with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errUnsupportedMediaType) {
		writeJSON(w, http.StatusUnsupportedMediaType, errorResponse{Error: err.Error(), Code: "unsupported_media_type"})
		return
	}

	kind := ledger.KindOf(err)
	message := err.Error()
	if kind == ledger.KindInternal {
		s.logger.Error("request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		message = http.StatusText(http.StatusInternalServerError)
	}
	writeJSON(w, StatusCode(kind), errorResponse{Error: message, Code: kind.String()})
}

// StatusCode returns the HTTP status for an error kind.
func StatusCode(kind ledger.Kind) int {
	switch kind {
	case ledger.KindNone:
		return http.StatusOK
	case ledger.KindValidation:
		return http.StatusBadRequest
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindConflict:
		return http.StatusConflict
	case ledger.KindInsufficientFunds:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}
