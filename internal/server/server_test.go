package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trip-provider/internal/config"
	"trip-provider/internal/domain"
	"trip-provider/internal/infrastructure/events"
	"trip-provider/internal/infrastructure/repo"
	"trip-provider/internal/pricing"
	"trip-provider/internal/usecase"
)

type approvingPayments struct {
	mu      sync.Mutex
	charges int
}

func (p *approvingPayments) Charge(_ context.Context, credential string, _ decimal.Decimal) (string, error) {
	if credential == "" {
		return "", domain.NewError(domain.KindPaymentCredential, "payment credential is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.charges++
	return fmt.Sprintf("pay_%d", p.charges), nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type testServer struct {
	srv      *Server
	payments *approvingPayments
	now      *time.Time
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	now := time.Now()
	tokens, err := usecase.NewTokenService("server-test-secret", 15*time.Minute, "trip-provider")
	require.NoError(t, err)
	tokens.Now = func() time.Time { return now }

	engine := pricing.NewEngine()
	store := repo.NewMemoryOrderRepo()
	ts := &testServer{payments: &approvingPayments{}, now: &now}
	booking := &usecase.BookingService{
		Engine:      engine,
		Tokens:      tokens,
		Itineraries: &usecase.ItineraryService{Engine: engine, Tokens: tokens},
		Orders:      &usecase.OrderService{Repo: store, Log: zap.NewNop()},
		Payments:    ts.payments,
		Events:      events.Noop{},
		Log:         zap.NewNop(),
	}
	ts.srv = New(cfg, booking, store, zap.NewNop())
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var b errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return b
}

func tokyoSuiteBody() map[string]any {
	return map[string]any{
		"productType": "Hotel",
		"currency":    "jpy",
		"partySize":   2,
		"params":      map[string]any{"city": "Tokyo", "roomType": "suite", "nights": 3, "stars": 4},
	}
}

func quoteToken(t *testing.T, ts *testServer) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/quotes", tokyoSuiteBody(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var q domain.QuoteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &q))
	require.NotEmpty(t, q.Token)
	return q.Token
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	ts.srv.store = stubPinger{err: errors.New("db down")}
	w = ts.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestQuote(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, http.MethodPost, "/api/quotes", tokyoSuiteBody(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var q domain.QuoteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &q))
	assert.Equal(t, "JPY", q.Currency)
	require.Len(t, q.LineItems, 1)
	assert.Equal(t, "HTL-TOK-4S-SUITE-3N", q.LineItems[0].SKU)
	assert.True(t, q.Total.Equal(q.LineItems[0].Total))
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestQuote_Errors(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/api/quotes", "{not json", map[string]string{requestIDHeader: "req-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	b := decodeError(t, w)
	assert.Equal(t, "VALIDATION", b.Error.Code)
	assert.Equal(t, "req-1", b.Error.RequestID)

	body := tokyoSuiteBody()
	body["productType"] = "spaceship"
	w = ts.do(t, http.MethodPost, "/api/quotes", body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNSUPPORTED_PRODUCT", decodeError(t, w).Error.Code)
}

func TestConfirm_IdempotentReplay(t *testing.T) {
	ts := newTestServer(t, nil)
	token := quoteToken(t, ts)
	body := map[string]any{"token": token, "paymentCredential": "mock_card_0"}
	headers := map[string]string{"Idempotency-Key": "order-1"}

	first := ts.do(t, http.MethodPost, "/api/orders/confirm", body, headers)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := ts.do(t, http.MethodPost, "/api/orders/confirm", body, headers)
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())

	var a, b domain.ConfirmResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.OrderID, b.OrderID)
	assert.Equal(t, a.VoucherCode, b.VoucherCode)
	assert.Equal(t, domain.OrderConfirmed, a.Status)
	assert.Equal(t, 1, ts.payments.charges)

	w := ts.do(t, http.MethodGet, "/api/orders/"+a.OrderID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, a.OrderID, raw["orderId"])
	assert.NotContains(t, raw, "quoteTokenHash")
	assert.NotContains(t, raw, "payloadSnapshot")
}

func TestConfirm_Errors(t *testing.T) {
	ts := newTestServer(t, nil)
	token := quoteToken(t, ts)

	w := ts.do(t, http.MethodPost, "/api/orders/confirm", map[string]any{"token": "garbage", "paymentCredential": "mock_x"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "TOKEN_INVALID", decodeError(t, w).Error.Code)

	w = ts.do(t, http.MethodPost, "/api/orders/confirm", map[string]any{"token": token}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "PAYMENT_CREDENTIAL", decodeError(t, w).Error.Code)

	ok := ts.do(t, http.MethodPost, "/api/orders/confirm", map[string]any{"token": token, "paymentCredential": "mock_a"}, map[string]string{"Idempotency-Key": "k"})
	require.Equal(t, http.StatusOK, ok.Code)
	other := quoteToken(t, ts)
	*ts.now = ts.now.Add(time.Second)
	w = ts.do(t, http.MethodPost, "/api/orders/confirm", map[string]any{"token": other, "paymentCredential": "mock_a", "itemRefs": []string{"x"}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION", decodeError(t, w).Error.Code)

	*ts.now = ts.now.Add(time.Hour)
	w = ts.do(t, http.MethodPost, "/api/orders/confirm", map[string]any{"token": token, "paymentCredential": "mock_a"}, nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "QUOTE_EXPIRED", decodeError(t, w).Error.Code)
}

func TestConfirm_IdempotencyConflict(t *testing.T) {
	ts := newTestServer(t, nil)
	first := quoteToken(t, ts)
	*ts.now = ts.now.Add(time.Second)
	second := quoteToken(t, ts)
	require.NotEqual(t, first, second)
	headers := map[string]string{"Idempotency-Key": "shared"}

	w := ts.do(t, http.MethodPost, "/api/orders/confirm", map[string]any{"token": first, "paymentCredential": "mock_a"}, headers)
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodPost, "/api/orders/confirm", map[string]any{"token": second, "paymentCredential": "mock_a"}, headers)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "IDEMPOTENCY_CONFLICT", decodeError(t, w).Error.Code)
}

func TestItineraryQuoteAndPartialConfirm(t *testing.T) {
	ts := newTestServer(t, nil)
	body := map[string]any{
		"itineraryId": "trip-1",
		"currency":    "AUD",
		"items": []map[string]any{
			{"reference": "flight-1", "productType": "transport", "partySize": 2, "params": map[string]any{"origin": "SYD", "destination": "MEL", "mode": "flight"}},
			{"reference": "hotel-1", "productType": "hotel", "partySize": 2, "params": map[string]any{"city": "Melbourne", "nights": 2}},
		},
	}
	w := ts.do(t, http.MethodPost, "/api/itineraries/quotes", body, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var q domain.ItineraryQuote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &q))
	require.Len(t, q.Items, 2)

	w = ts.do(t, http.MethodPost, "/api/orders/confirm", map[string]any{
		"token": q.Token, "paymentCredential": "mock_a", "itemRefs": []string{"hotel-1"},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var c domain.ConfirmResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, []string{"hotel-1"}, c.ItemRefs)
	assert.True(t, c.Total.Equal(q.Items[1].Total))

	w = ts.do(t, http.MethodPost, "/api/itineraries/quotes", map[string]any{"itineraryId": "empty", "currency": "AUD"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrders_GetAndList(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, http.MethodGet, "/api/orders/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, w).Error.Code)

	for i := 0; i < 3; i++ {
		token := quoteToken(t, ts)
		w := ts.do(t, http.MethodPost, "/api/orders/confirm", map[string]any{"token": token, "paymentCredential": "mock_a"}, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/orders?page=1&pageSize=2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Items    []map[string]any `json:"items"`
		Total    int              `json:"total"`
		Page     int              `json:"page"`
		PageSize int              `json:"pageSize"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.PageSize)

	w = ts.do(t, http.MethodGet, "/api/orders?page=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.RateLimitPerMin = 2 })
	for i := 0; i < 2; i++ {
		w := ts.do(t, http.MethodGet, "/api/orders", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := ts.do(t, http.MethodGet, "/api/orders", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, w).Error.Code)

	health := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, health.Code)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.Validationf("bad"), http.StatusBadRequest, "VALIDATION"},
		{domain.NewError(domain.KindPaymentDeclined, "declined"), http.StatusPaymentRequired, "PAYMENT_DECLINED"},
		{fmt.Errorf("wrapped: %w", domain.NewError(domain.KindNotFound, "x")), http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("get order: %w", gobreaker.ErrOpenState), http.StatusServiceUnavailable, "UNAVAILABLE"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		status, code := statusOf(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
