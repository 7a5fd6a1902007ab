package supplier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"supplier-sync/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopLimiter struct {
	recorded int32
}

func (n *noopLimiter) SmartWait(context.Context, time.Duration) error { return nil }
func (n *noopLimiter) RecordRequest(context.Context) error {
	atomic.AddInt32(&n.recorded, 1)
	return nil
}

type memSettings struct {
	data map[string][]byte
}

func newMemSettings() *memSettings {
	return &memSettings{data: map[string][]byte{}}
}

func (m *memSettings) GetJSON(_ context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memSettings) SetJSON(_ context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func testClient(t *testing.T, baseURL string) (*Client, *noopLimiter, *memSettings) {
	t.Helper()
	limiter := &noopLimiter{}
	settings := newMemSettings()
	c := NewClient(config.SupplierConfig{
		BaseURL:        baseURL,
		Email:          "dealer@example.com",
		Password:       "secret",
		RequestTimeout: 5 * time.Second,
	}, limiter, settings)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c, limiter, settings
}

func TestAuthenticateStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "dealer@example.com", creds["email"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"token": "tok-123",
			"exp":   time.Now().Add(time.Hour).Unix(),
		})
	}))
	defer srv.Close()

	c, _, settings := testClient(t, srv.URL)

	tok, err := c.Authenticate(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok.Value)
	assert.True(t, tok.Expiry.After(time.Now()))

	// token and credentials persist for the next process
	assert.Contains(t, settings.data, tokenSettingsKey)
	assert.Contains(t, settings.data, credentialsSettingsKey)
}

func TestAuthenticateNoCredentials(t *testing.T) {
	limiter := &noopLimiter{}
	c := NewClient(config.SupplierConfig{BaseURL: "http://unused"}, limiter, newMemSettings())

	_, err := c.Authenticate(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestAuthenticateFallsBackToStoredCredentials(t *testing.T) {
	var gotEmail string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		json.NewDecoder(r.Body).Decode(&creds)
		gotEmail = creds["email"]
		json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	}))
	defer srv.Close()

	limiter := &noopLimiter{}
	settings := newMemSettings()
	require.NoError(t, settings.SetJSON(context.Background(), credentialsSettingsKey,
		storedCredentials{Email: "stored@example.com", Password: "pw"}))

	c := NewClient(config.SupplierConfig{
		BaseURL:        srv.URL,
		RequestTimeout: 5 * time.Second,
	}, limiter, settings)

	_, err := c.Authenticate(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "stored@example.com", gotEmail)
}

func TestRequestReauthenticatesOn401(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth" {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"token": "fresh",
				"exp":   time.Now().Add(time.Hour).Unix(),
			})
			return
		}

		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			assert.Equal(t, "jwt stale", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "jwt fresh", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{"result": []interface{}{}, "total": 0})
	}))
	defer srv.Close()

	c, _, settings := testClient(t, srv.URL)
	require.NoError(t, settings.SetJSON(context.Background(), tokenSettingsKey,
		map[string]interface{}{"value": "stale", "expiry": time.Now().Add(time.Hour)}))

	resp, err := c.GetProducts(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Total)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRequestRetriesOn429(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth" {
			json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
			return
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"result": []interface{}{}, "total": 7})
	}))
	defer srv.Close()

	c, _, _ := testClient(t, srv.URL)

	resp, err := c.GetProducts(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 7, resp.Total)
}

func TestRequestExhausts429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth" {
			json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _, _ := testClient(t, srv.URL)

	_, err := c.GetProducts(context.Background(), nil)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestRequestSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth" {
			json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"message": "sku not found"})
	}))
	defer srv.Close()

	c, _, _ := testClient(t, srv.URL)

	_, err := c.GetProducts(context.Background(), nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Code)
	assert.Equal(t, "sku not found", apiErr.Message)
}

func TestRequestTransportErrorAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	}))
	base := srv.URL
	srv.Close() // connections now refused

	c, _, settings := testClient(t, base)
	require.NoError(t, settings.SetJSON(context.Background(), tokenSettingsKey,
		map[string]interface{}{"value": "tok", "expiry": time.Now().Add(time.Hour)}))

	_, err := c.GetProducts(context.Background(), nil)
	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
}

func TestGetProductsDefaults(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth" {
			json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
			return
		}
		query = r.URL.RawQuery
		json.NewEncoder(w).Encode(map[string]interface{}{"result": []interface{}{}, "total": 0})
	}))
	defer srv.Close()

	c, _, _ := testClient(t, srv.URL)

	_, err := c.GetProducts(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, query, "page_no=1")
	assert.Contains(t, query, "limit=200")
	assert.Contains(t, query, "enabled=1")
}

func TestGetProductsBySKUsTruncates(t *testing.T) {
	var gotSKUs string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth" {
			json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
			return
		}
		gotSKUs = r.URL.Query().Get("skus")
		json.NewEncoder(w).Encode(map[string]interface{}{"result": []interface{}{}, "total": 0})
	}))
	defer srv.Close()

	c, _, _ := testClient(t, srv.URL)

	skus := make([]string, 150)
	for i := range skus {
		skus[i] = "SKU"
	}
	_, err := c.GetProductsBySKUs(context.Background(), skus)
	require.NoError(t, err)
	assert.Len(t, strings.Split(gotSKUs, ","), maxBatchSKUs)
}

func TestGetStockCapsLimit(t *testing.T) {
	var got StockRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth" {
			json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]interface{}{"result": []interface{}{}, "total": 0})
	}))
	defer srv.Close()

	c, _, _ := testClient(t, srv.URL)

	_, err := c.GetStock(context.Background(), StockRequest{Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, maxStockLimit, got.Limit)
	assert.Equal(t, 1, got.PageNo)
}

func TestEveryRequestHitsTheWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth" {
			json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"result": []interface{}{}, "total": 0})
	}))
	defer srv.Close()

	c, limiter, _ := testClient(t, srv.URL)

	_, err := c.GetProducts(context.Background(), nil)
	require.NoError(t, err)
	// one auth call plus one products call
	assert.Equal(t, int32(2), atomic.LoadInt32(&limiter.recorded))
}
