package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribely/backend/internal/entitlement"
	"github.com/scribely/backend/internal/quota"
)

func issueProCookie(t *testing.T, codec *entitlement.CookieCodec) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	require.NoError(t, codec.Issue(rec, entitlement.Cookie{Pro: true, CustomerID: "cus_1", SubscriptionID: "sub_1"}))
	return rec.Result().Cookies()[0]
}

func TestGetUsageReflectsConsumption(t *testing.T) {
	store := newMemStore()
	codec := entitlement.NewCookieCodec("test-secret", false)
	gate := quota.NewGate(entitlement.NewResolver(nil), store)
	h := NewUsageHandler(gate, codec)

	// consume some budget first via the transform handler
	th, _ := newTransformHandler(store, &fakeGenerator{response: "ok"}, true)
	postTransform(t, th, TransformRequest{Mode: "mejora", Text: words(300)})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	rec := httptest.NewRecorder()
	h.GetUsage(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp UsageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(300), resp.Used)
	assert.Equal(t, int64(1000), resp.Limit)
	assert.False(t, resp.IsPro)

	// peeking does not consume
	rec = httptest.NewRecorder()
	h.GetUsage(rec, req)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(300), resp.Used)
}

func TestGetUsageForProCookie(t *testing.T) {
	store := newMemStore()
	codec := entitlement.NewCookieCodec("test-secret", false)
	gate := quota.NewGate(entitlement.NewResolver(nil), store)
	h := NewUsageHandler(gate, codec)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	req.AddCookie(issueProCookie(t, codec))

	rec := httptest.NewRecorder()
	h.GetUsage(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp UsageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsPro)
	assert.Equal(t, int64(20000), resp.Limit)
	assert.Zero(t, resp.Used)
}

func TestGetAccountMirrorsTheCookie(t *testing.T) {
	codec := entitlement.NewCookieCodec("test-secret", false)
	h := NewAccountHandler(codec)

	t.Run("with pro cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/account", nil)
		req.AddCookie(issueProCookie(t, codec))

		rec := httptest.NewRecorder()
		h.GetAccount(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp AccountResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Pro)
		require.NotNil(t, resp.Customer)
		assert.Equal(t, "cus_1", *resp.Customer)
		require.NotNil(t, resp.Subscription)
		assert.Equal(t, "sub_1", *resp.Subscription)
	})

	t.Run("anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/account", nil)

		rec := httptest.NewRecorder()
		h.GetAccount(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp AccountResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Pro)
		assert.Nil(t, resp.Customer)
		assert.Nil(t, resp.Subscription)
	})
}
