package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"account-ledger/pkg/ledger"
	"account-ledger/pkg/ledger/memory"
	"account-ledger/pkg/logging"
	memorycollector "account-ledger/pkg/metrics/memory"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type testServer struct {
	server       *Server
	accounts     *memory.AccountStore
	transactions *memory.TransactionLedger
	metrics      *memorycollector.MemoryCollector
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		accounts:     memory.NewAccountStore(memory.AccountStoreConfig{}),
		transactions: memory.NewTransactionLedger(memory.TransactionLedgerConfig{}),
		metrics:      memorycollector.NewMemoryCollector(),
	}
	core := ledger.NewCore(ts.accounts, ts.transactions, ledger.CoreConfig{
		Metrics: ts.metrics,
		Logger:  logging.NewNoOpLogger(),
	})
	ts.server = NewServer(core, ts.metrics, logging.NewNoOpLogger(), DefaultServerConfig())
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func amountBody(accountID string, amount string) string {
	return `{"account_id":"` + accountID + `","amount":` + amount + `}`
}

func TestServer_CreateAccount(t *testing.T) {
	ts := setupTestServer(t)
	id := uuid.NewString()

	w := ts.do(t, http.MethodPost, "/api/v1/accounts", amountBody(id, "100.50"))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var raw map[string]json.RawMessage
	json.Unmarshal(w.Body.Bytes(), &raw)
	if string(raw["balance"]) != "100.5" {
		t.Errorf("balance = %s, want unquoted number 100.5", raw["balance"])
	}
	if string(raw["account_id"]) != `"`+id+`"` {
		t.Errorf("account_id = %s", raw["account_id"])
	}

	w = ts.do(t, http.MethodPost, "/api/v1/accounts", amountBody(id, "5"))
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", w.Code)
	}
	if got := decode[errorResponse](t, w); got.Code != "conflict" {
		t.Errorf("duplicate code = %q, want conflict", got.Code)
	}

	if ts.transactions.Len() != 0 {
		t.Errorf("explicit account creation recorded %d transactions", ts.transactions.Len())
	}
}

func TestServer_CreateAccount_Validation(t *testing.T) {
	id := uuid.NewString()

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not json", "{"},
		{"array", "[1]"},
		{"missing account_id", `{"amount":10}`},
		{"account_id not uuid", amountBody("acc-1", "10")},
		{"account_id number", `{"account_id":12,"amount":10}`},
		{"missing amount", `{"account_id":"` + id + `"}`},
		{"null amount", amountBody(id, "null")},
		{"string amount", amountBody(id, `"10"`)},
		{"bool amount", amountBody(id, "true")},
		{"negative amount", amountBody(id, "-1")},
		{"trailing data", amountBody(id, "1") + "{}"},
		{"tiny exponent", amountBody(id, "1e-100000000")},
		{"huge exponent", amountBody(id, "1e100000000")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServer(t)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			ts.server.Handler().ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
			}
			if got := decode[errorResponse](t, w); got.Code != "validation" || got.Error == "" {
				t.Errorf("body = %+v", got)
			}
			if ts.accounts.Len() != 0 {
				t.Error("rejected request created an account")
			}
		})
	}
}

func TestServer_UnsupportedMediaType(t *testing.T) {
	ts := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(amountBody(uuid.NewString(), "1")))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", w.Code)
	}
}

func TestServer_GetAccount(t *testing.T) {
	ts := setupTestServer(t)
	id := uuid.NewString()
	ts.do(t, http.MethodPost, "/api/v1/accounts", amountBody(id, "10"))

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"found", "/api/v1/accounts/" + id, http.StatusOK, ""},
		{"uppercase id is canonicalized", "/api/v1/accounts/" + strings.ToUpper(id), http.StatusOK, ""},
		{"unknown", "/api/v1/accounts/" + uuid.NewString(), http.StatusNotFound, "not_found"},
		{"malformed", "/api/v1/accounts/not-a-uuid", http.StatusBadRequest, "validation"},
		{"missing", "/api/v1/accounts/", http.StatusBadRequest, "validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodGet, tt.path, "")
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			if tt.code != "" {
				if got := decode[errorResponse](t, w); got.Code != tt.code {
					t.Errorf("code = %q, want %q", got.Code, tt.code)
				}
				return
			}
			account := decode[ledger.Account](t, w)
			if account.ID != id || !account.Balance.Equal(decimal.NewFromInt(10)) {
				t.Errorf("account = %+v", account)
			}
		})
	}
}

func TestServer_Apply(t *testing.T) {
	ts := setupTestServer(t)
	id := uuid.NewString()

	steps := []struct {
		amount  string
		status  int
		balance string
	}{
		{"100", http.StatusCreated, "100"},
		{"-30.25", http.StatusCreated, "69.75"},
		{"-70", http.StatusPaymentRequired, "69.75"},
		{"0", http.StatusCreated, "69.75"},
		{"-69.75", http.StatusCreated, "0"},
	}

	for i, step := range steps {
		w := ts.do(t, http.MethodPost, "/api/v1/transactions", amountBody(id, step.amount))
		if w.Code != step.status {
			t.Fatalf("step %d: status = %d, want %d: %s", i, w.Code, step.status, w.Body.String())
		}
		if step.status == http.StatusCreated {
			tx := decode[ledger.Transaction](t, w)
			if tx.AccountID != id || !tx.Amount.Equal(decimal.RequireFromString(step.amount)) {
				t.Errorf("step %d: transaction = %+v", i, tx)
			}
			if _, err := uuid.Parse(tx.ID); err != nil {
				t.Errorf("step %d: transaction id %q is not a UUID", i, tx.ID)
			}
		} else if got := decode[errorResponse](t, w); got.Code != "insufficient_funds" {
			t.Errorf("step %d: code = %q", i, got.Code)
		}

		account := decode[ledger.Account](t, ts.do(t, http.MethodGet, "/api/v1/accounts/"+id, ""))
		if !account.Balance.Equal(decimal.RequireFromString(step.balance)) {
			t.Errorf("step %d: balance = %s, want %s", i, account.Balance, step.balance)
		}
	}

	if ts.transactions.Len() != 4 {
		t.Errorf("recorded %d transactions, want 4", ts.transactions.Len())
	}
}

func TestServer_Apply_OpensAccount(t *testing.T) {
	ts := setupTestServer(t)
	id := uuid.NewString()

	w := ts.do(t, http.MethodPost, "/api/v1/transactions/", amountBody(id, "-5"))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	account := decode[ledger.Account](t, ts.do(t, http.MethodGet, "/api/v1/accounts/"+id, ""))
	if !account.Balance.Equal(decimal.NewFromInt(-5)) {
		t.Errorf("balance = %s, want -5", account.Balance)
	}
}

func TestServer_Apply_Validation(t *testing.T) {
	ts := setupTestServer(t)

	for _, body := range []string{
		`{"amount":1}`,
		amountBody("", "1"),
		amountBody("acc-1", "1"),
		amountBody(uuid.NewString(), `"1"`),
		`{"account_id":"` + uuid.NewString() + `"}`,
		amountBody(uuid.NewString(), "1e-100000000"),
		amountBody(uuid.NewString(), "1e100000000"),
		amountBody(uuid.NewString(), "0.0000000000000000001"),
		amountBody(uuid.NewString(), "123456789012345678901234567890123456789"),
	} {
		w := ts.do(t, http.MethodPost, "/api/v1/transactions", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, w.Code)
		}
	}
	if ts.transactions.Len() != 0 || ts.accounts.Len() != 0 {
		t.Error("rejected requests reached the stores")
	}
}

func TestServer_Apply_RejectedAmountKeepsAccountUsable(t *testing.T) {
	ts := setupTestServer(t)
	id := uuid.NewString()
	ts.do(t, http.MethodPost, "/api/v1/transactions", amountBody(id, "100"))

	if w := ts.do(t, http.MethodPost, "/api/v1/transactions", amountBody(id, "1e-100000000")); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	w := ts.do(t, http.MethodPost, "/api/v1/transactions", amountBody(id, "0.000000000000000001"))
	if w.Code != http.StatusCreated {
		t.Fatalf("smallest allowed amount status = %d, want 201: %s", w.Code, w.Body.String())
	}
	account := decode[ledger.Account](t, ts.do(t, http.MethodGet, "/api/v1/accounts/"+id, ""))
	if !account.Balance.Equal(decimal.RequireFromString("100.000000000000000001")) {
		t.Errorf("balance = %s", account.Balance)
	}
}

func TestServer_Apply_StoreFailure(t *testing.T) {
	ts := setupTestServer(t)
	ts.accounts.Close()

	w := ts.do(t, http.MethodPost, "/api/v1/transactions", amountBody(uuid.NewString(), "1"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	got := decode[errorResponse](t, w)
	if got.Code != "internal" || got.Error != http.StatusText(http.StatusInternalServerError) {
		t.Errorf("body = %+v, internal details should not leak", got)
	}
}

func TestServer_ConcurrentApply(t *testing.T) {
	ts := setupTestServer(t)
	id := uuid.NewString()
	ts.do(t, http.MethodPost, "/api/v1/accounts", amountBody(id, "0"))

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts.do(t, http.MethodPost, "/api/v1/transactions", amountBody(id, "2.5"))
		}()
	}
	wg.Wait()

	account := decode[ledger.Account](t, ts.do(t, http.MethodGet, "/api/v1/accounts/"+id, ""))
	if !account.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance = %s, want 100", account.Balance)
	}
}

func TestServer_Transactions(t *testing.T) {
	ts := setupTestServer(t)

	for _, path := range []string{"/api/v1/transactions", "/api/v1/transactions/"} {
		w := ts.do(t, http.MethodGet, path, "")
		if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
			t.Errorf("%s on empty ledger = %d %q, want 200 []", path, w.Code, w.Body.String())
		}
	}

	a, b := uuid.NewString(), uuid.NewString()
	first := decode[ledger.Transaction](t, ts.do(t, http.MethodPost, "/api/v1/transactions", amountBody(a, "1")))
	ts.do(t, http.MethodPost, "/api/v1/transactions", amountBody(b, "2"))
	ts.do(t, http.MethodPost, "/api/v1/transactions", amountBody(a, "3"))

	list := decode[[]ledger.Transaction](t, ts.do(t, http.MethodGet, "/api/v1/transactions/", ""))
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	for i, want := range []string{"1", "2", "3"} {
		if !list[i].Amount.Equal(decimal.RequireFromString(want)) {
			t.Errorf("list[%d].Amount = %s, want %s (creation order)", i, list[i].Amount, want)
		}
	}

	w := ts.do(t, http.MethodGet, "/api/v1/transactions/"+first.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if got := decode[ledger.Transaction](t, w); got.ID != first.ID || got.AccountID != a {
		t.Errorf("transaction = %+v", got)
	}

	if w := ts.do(t, http.MethodGet, "/api/v1/transactions/"+uuid.NewString(), ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown transaction status = %d, want 404", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/v1/transactions/xyz", ""); w.Code != http.StatusBadRequest {
		t.Errorf("malformed transaction id status = %d, want 400", w.Code)
	}
}

func TestServer_Ping(t *testing.T) {
	ts := setupTestServer(t)

	if w := ts.do(t, http.MethodGet, "/api/v1/ping", ""); w.Code != http.StatusOK {
		t.Errorf("healthy ping = %d, want 200", w.Code)
	}

	ts.transactions.Close()
	if w := ts.do(t, http.MethodGet, "/api/v1/ping", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("unhealthy ping = %d, want 500", w.Code)
	}
}

func TestServer_RoutingErrors(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		method string
		path   string
		status int
		code   string
	}{
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound, "not_found"},
		{http.MethodDelete, "/api/v1/transactions", http.StatusMethodNotAllowed, "method_not_allowed"},
		{http.MethodPut, "/api/v1/accounts", http.StatusMethodNotAllowed, "method_not_allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.path, "")
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if got := decode[errorResponse](t, w); got.Code != tt.code {
				t.Errorf("code = %q, want %q", got.Code, tt.code)
			}
			if _, err := uuid.Parse(w.Header().Get(RequestIDHeader)); err != nil {
				t.Errorf("request id %q is not a UUID", w.Header().Get(RequestIDHeader))
			}
		})
	}

	snap := ts.metrics.Snapshot()
	if n := snap.HTTPRequests["GET unmatched 404"]; n != 1 {
		t.Errorf("not found request count = %d, want 1 (%v)", n, snap.HTTPRequests)
	}
	if n := snap.HTTPRequests["DELETE unmatched 405"]; n != 1 {
		t.Errorf("method not allowed request count = %d, want 1 (%v)", n, snap.HTTPRequests)
	}
}

func TestServer_RequestID(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/ping", "")
	if _, err := uuid.Parse(w.Header().Get(RequestIDHeader)); err != nil {
		t.Errorf("generated request id %q is not a UUID", w.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want the caller's abc-123", got)
	}
}

func TestServer_CORS(t *testing.T) {
	ts := setupTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/transactions", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("preflight status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestServer_Metrics(t *testing.T) {
	ts := setupTestServer(t)
	id := uuid.NewString()

	ts.do(t, http.MethodPost, "/api/v1/transactions", amountBody(id, "1"))
	ts.do(t, http.MethodGet, "/api/v1/accounts/"+id, "")

	snap := ts.metrics.Snapshot()
	if n := snap.HTTPRequests["GET /api/v1/accounts/{account_id} 200"]; n != 1 {
		t.Errorf("route-template request count = %d, want 1 (%v)", n, snap.HTTPRequests)
	}
	if n := snap.HTTPRequests["POST /api/v1/transactions 201"]; n != 1 {
		t.Errorf("apply request count = %d, want 1", n)
	}

	w := ts.do(t, http.MethodGet, "/metrics/json", "")
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics/json status = %d", w.Code)
	}
	body := decode[map[string]interface{}](t, w)
	if _, ok := body["applies"]; !ok {
		t.Errorf("/metrics/json body = %v", body)
	}

	if w := ts.do(t, http.MethodGet, "/metrics", ""); w.Code != http.StatusOK {
		t.Errorf("/metrics status = %d", w.Code)
	}
}

type panickingLedger struct{ Ledger }

func (panickingLedger) Ping(context.Context) error { panic("boom") }

type failingLedger struct{ Ledger }

func (failingLedger) Transactions(context.Context) ([]ledger.Transaction, error) {
	return nil, ledger.E(ledger.KindInternal, "ledger.transactions", errors.New("disk on fire"))
}

func TestServer_Recovery(t *testing.T) {
	server := NewServer(panickingLedger{}, nil, logging.NewNoOpLogger(), DefaultServerConfig())

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status after panic = %d, want 500", w.Code)
	}
}

func TestServer_ListFailure(t *testing.T) {
	server := NewServer(failingLedger{}, nil, logging.NewNoOpLogger(), DefaultServerConfig())

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "disk on fire") {
		t.Error("internal error text leaked to the client")
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		kind ledger.Kind
		want int
	}{
		{ledger.KindValidation, http.StatusBadRequest},
		{ledger.KindNotFound, http.StatusNotFound},
		{ledger.KindConflict, http.StatusConflict},
		{ledger.KindInsufficientFunds, http.StatusPaymentRequired},
		{ledger.KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := StatusCode(tt.kind); got != tt.want {
			t.Errorf("StatusCode(%v) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}
