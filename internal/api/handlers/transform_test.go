package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribely/backend/internal/ai"
	"github.com/scribely/backend/internal/entitlement"
	"github.com/scribely/backend/internal/quota"
)

// memStore is the in-memory quota.Store backing the handler tests
type memStore struct {
	mu     sync.Mutex
	values map[string]int64
	down   bool
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]int64)}
}

func (m *memStore) Name() string { return "mem" }

func (m *memStore) Get(ctx context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return 0, false, fmt.Errorf("store down")
	}
	val, ok := m.values[key]
	return val, ok, nil
}

func (m *memStore) IncrBy(ctx context.Context, key string, by int64, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return 0, fmt.Errorf("store down")
	}
	m.values[key] += by
	return m.values[key], nil
}

// fakeGenerator echoes a canned response, or fails with the given error
type fakeGenerator struct {
	response string
	err      error
}

func (f *fakeGenerator) Chat(ctx context.Context, model, system, user string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func newTransformHandler(store quota.Store, gen ai.Generator, configured bool) (*TransformHandler, *entitlement.CookieCodec) {
	codec := entitlement.NewCookieCodec("test-secret", false)
	gate := quota.NewGate(entitlement.NewResolver(nil), store)
	svc := ai.NewTransformService(gen, "gpt-4o-mini", "gpt-3.5-turbo")
	return NewTransformHandler(gate, svc, codec, configured, false), codec
}

func postTransform(t *testing.T, h *TransformHandler, body TransformRequest, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/transform", bytes.NewReader(payload))
	req.RemoteAddr = "203.0.113.7:51234"
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	h.Transform(rec, req)
	return rec
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("palabra ", n))
}

func TestTransformChargesAndAnswers(t *testing.T) {
	store := newMemStore()
	h, _ := newTransformHandler(store, &fakeGenerator{response: "Texto mejorado."}, true)

	rec := postTransform(t, h, TransformRequest{Mode: ai.ModeImprove, Text: words(400)})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TransformResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Texto mejorado.", resp.Result)
	assert.Equal(t, int64(400), resp.Used)
	assert.Equal(t, int64(1000), resp.Limit)

	// advisory usage cookie reflects the new counter
	var usage *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == entitlement.UsageCookieName {
			usage = c
		}
	}
	require.NotNil(t, usage)
	assert.True(t, strings.HasSuffix(usage.Value, ":400"))
}

func TestTransformRejectsOverLimitWith402(t *testing.T) {
	store := newMemStore()
	h, _ := newTransformHandler(store, &fakeGenerator{response: "ok"}, true)

	rec := postTransform(t, h, TransformRequest{Mode: ai.ModeImprove, Text: words(1000)})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postTransform(t, h, TransformRequest{Mode: ai.ModeImprove, Text: "una"})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	var resp struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "limit_reached", resp.Code)
	assert.Contains(t, resp.Error, "Hazte Pro")
}

func TestTransformProCookieRaisesTheLimit(t *testing.T) {
	store := newMemStore()
	h, codec := newTransformHandler(store, &fakeGenerator{response: "ok"}, true)

	rec := httptest.NewRecorder()
	require.NoError(t, codec.Issue(rec, entitlement.Cookie{Pro: true, CustomerID: "cus_1"}))
	proCookie := rec.Result().Cookies()[0]

	// 5000 words would blow the free budget but fits the pro one
	res := postTransform(t, h, TransformRequest{Mode: ai.ModeImprove, Text: words(5000)}, proCookie)
	require.Equal(t, http.StatusOK, res.Code)

	var resp TransformResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &resp))
	assert.Equal(t, int64(5000), resp.Used)
	assert.Equal(t, int64(20000), resp.Limit)
}

func TestTransformDemoFallbackStillCharges(t *testing.T) {
	store := newMemStore()
	quotaErr := &ai.APIError{StatusCode: 429, Code: "insufficient_quota", Message: "quota"}
	h, _ := newTransformHandler(store, &fakeGenerator{err: quotaErr}, true)

	rec := postTransform(t, h, TransformRequest{Mode: ai.ModeSummarize, Text: "Primera frase. Segunda frase. Tercera frase. Cuarta frase."})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TransformResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.Result, ai.DemoMarker))
	assert.Equal(t, int64(8), resp.Used)

	// charged exactly once, at admission
	day := quota.DayKey(time.Now())
	assert.Equal(t, int64(8), store.values[quota.BuildKey(day, "203.0.113.7", "free")])
}

func TestTransformUpstreamFailureKeepsTheCharge(t *testing.T) {
	store := newMemStore()
	upstream := &ai.APIError{StatusCode: 500, Message: "server error"}
	h, _ := newTransformHandler(store, &fakeGenerator{err: upstream}, true)

	rec := postTransform(t, h, TransformRequest{Mode: ai.ModeImprove, Text: words(10)})
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	day := quota.DayKey(time.Now())
	assert.Equal(t, int64(10), store.values[quota.BuildKey(day, "203.0.113.7", "free")])
}

func TestTransformValidation(t *testing.T) {
	store := newMemStore()

	t.Run("empty text", func(t *testing.T) {
		h, _ := newTransformHandler(store, &fakeGenerator{response: "ok"}, true)
		rec := postTransform(t, h, TransformRequest{Mode: ai.ModeImprove, Text: "   "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing api key", func(t *testing.T) {
		h, _ := newTransformHandler(store, &fakeGenerator{response: "ok"}, false)
		rec := postTransform(t, h, TransformRequest{Mode: ai.ModeImprove, Text: "hola"})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "OPENAI_API_KEY")
	})

	t.Run("invalid json", func(t *testing.T) {
		h, _ := newTransformHandler(store, &fakeGenerator{response: "ok"}, true)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/transform", strings.NewReader("{broken"))
		rec := httptest.NewRecorder()
		h.Transform(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTransformStoreOutageUsesUsageCookie(t *testing.T) {
	store := newMemStore()
	store.down = true
	h, _ := newTransformHandler(store, &fakeGenerator{response: "ok"}, true)

	day := quota.DayKey(time.Now())
	hint := &http.Cookie{Name: entitlement.UsageCookieName, Value: quota.FormatUsageHint(day, 990)}

	// the local estimate says the budget is nearly gone
	rec := postTransform(t, h, TransformRequest{Mode: ai.ModeImprove, Text: words(20)}, hint)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	// a small request still fits and is served
	rec = postTransform(t, h, TransformRequest{Mode: ai.ModeImprove, Text: words(5)}, hint)
	assert.Equal(t, http.StatusOK, rec.Code)
}
