package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ramppay/ramppay-sync-go/internal/adapters/config"
	"github.com/ramppay/ramppay-sync-go/internal/domain"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...any) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...any)  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...any)  {}
func (nopLogger) Error(ctx context.Context, msg string, fields ...any) {}
func (nopLogger) Fatal(ctx context.Context, msg string, fields ...any) {}
func (l nopLogger) With(fields ...any) domain.Logger                   { return l }

type staticConfig struct {
	cfg *config.Config
}

func (p *staticConfig) Get() *config.Config { return p.cfg }

func newTestClient(baseURL string, timeoutSeconds int) *Client {
	provider := &staticConfig{cfg: &config.Config{
		API: config.APIConfig{BaseURL: baseURL, TimeoutSeconds: timeoutSeconds},
	}}
	return NewClient(provider, nopLogger{})
}

func TestGetTransactionDecodesRecord(t *testing.T) {
	var gotAuth, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		if r.URL.Path != "/transactions/txn-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(domain.Transaction{
			ID:           "txn-1",
			Status:       domain.StatusConvertingToUSDT,
			FiatAmount:   250,
			FiatCurrency: "EUR",
			Network:      "TRC20",
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	c.SetBearer("token-abc")

	txn, err := c.GetTransaction(context.Background(), "txn-1")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if txn.Status != domain.StatusConvertingToUSDT || txn.FiatAmount != 250 {
		t.Fatalf("unexpected transaction: %+v", txn)
	}
	if gotAuth != "Bearer token-abc" {
		t.Fatalf("Authorization header = %q", gotAuth)
	}
	if gotRequestID == "" {
		t.Fatal("X-Request-ID header missing")
	}
}

func TestGetTransactionNotFoundCarriesID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "transaction not found"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	_, err := c.GetTransaction(context.Background(), "txn-missing")

	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
	if nf.ID != "txn-missing" {
		t.Fatalf("NotFoundError.ID = %q, want txn-missing", nf.ID)
	}
}

func TestUnauthorizedClearsCredentialAndFiresHook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	c.SetBearer("stale-token")
	var hookFired atomic.Bool
	c.SetOnUnauthorized(func(ctx context.Context) { hookFired.Store(true) })

	_, err := c.GetMe(context.Background())
	var authErr *domain.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want AuthError", err)
	}
	if c.Bearer() != "" {
		t.Fatal("bearer not cleared after 401")
	}
	if !hookFired.Load() {
		t.Fatal("unauthorized hook did not fire")
	}
}

func TestServerErrorCarriesEnvelopeMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"message": "amount below minimum"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	_, err := c.GetRate(context.Background(), 1, "EUR")

	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want FetchError", err)
	}
	if fe.Message != "amount below minimum" {
		t.Fatalf("message = %q", fe.Message)
	}
	if fe.IsTimeout || fe.IsNetworkError {
		t.Fatalf("HTTP-level failure misclassified: %+v", fe)
	}
}

func TestTimeoutRetriesExactlyOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1)
	_, err := c.GetTransaction(context.Background(), "txn-1")

	var fe *domain.FetchError
	if !errors.As(err, &fe) || !fe.IsTimeout {
		t.Fatalf("error = %v, want timeout FetchError", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("attempts = %d, want 2 (one automatic retry)", got)
	}
}

func TestConnectionRefusedClassifiedAsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(url, 1)
	_, err := c.GetTransaction(context.Background(), "txn-1")

	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want FetchError", err)
	}
	if !fe.IsNetworkError {
		t.Fatalf("refused connection not flagged as network error: %+v", fe)
	}
}

func TestListTransactionsSendsQueryParameters(t *testing.T) {
	var gotPath, gotRawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRawQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(map[string]any{"transactions": []domain.Transaction{{ID: "txn-1"}}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	txns, err := c.ListTransactions(context.Background(), 5, 0)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("transactions = %d, want 1", len(txns))
	}
	if gotPath != "/transactions" {
		t.Fatalf("server saw path %q, want /transactions", gotPath)
	}
	if gotRawQuery != "limit=5&offset=0" {
		t.Fatalf("server saw query %q, want limit=5&offset=0", gotRawQuery)
	}
}

func TestGetRateSendsQueryParameters(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(domain.RateQuote{CryptoAmount: 96.5, ExchangeRate: 1.04})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	quote, err := c.GetRate(context.Background(), 100.5, "EUR")
	if err != nil {
		t.Fatalf("GetRate: %v", err)
	}
	if quote.CryptoAmount != 96.5 {
		t.Fatalf("crypto amount = %v", quote.CryptoAmount)
	}
	if gotPath != "/rates" {
		t.Fatalf("server saw path %q, want /rates", gotPath)
	}
	if got := gotQuery["amount"]; len(got) != 1 || got[0] != "100.5" {
		t.Fatalf("amount query = %v, want [100.5]", got)
	}
	if got := gotQuery["currency"]; len(got) != 1 || got[0] != "EUR" {
		t.Fatalf("currency query = %v, want [EUR]", got)
	}
}

func TestLoginInstallsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "a@b.c" {
			t.Errorf("email = %q", body["email"])
		}
		json.NewEncoder(w).Encode(domain.AuthResult{
			Token: "fresh-token",
			User:  domain.User{ID: "user-1", Email: "a@b.c", Verified: true},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	result, err := c.Login(context.Background(), "a@b.c", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.User.ID != "user-1" {
		t.Fatalf("user id = %q", result.User.ID)
	}
	if c.Bearer() != "fresh-token" {
		t.Fatalf("bearer = %q after login", c.Bearer())
	}
}

func TestLogoutDropsBearerEvenOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	c.SetBearer("token")
	_ = c.Logout(context.Background())
	if c.Bearer() != "" {
		t.Fatal("bearer survived logout")
	}
}
