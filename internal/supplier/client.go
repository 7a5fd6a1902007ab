package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"supplier-sync/config"
	"supplier-sync/internal/models"
	"supplier-sync/internal/util"

	"go.uber.org/zap"
)

const (
	// Documented supplier maxima.
	maxPageLimit  = 200
	maxBatchSKUs  = 100
	maxStockLimit = 160
)

type storedCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

const credentialsSettingsKey = "supplier_credentials"

// RateLimiter gates outbound requests. The ratelimit.Limiter satisfies this.
type RateLimiter interface {
	SmartWait(ctx context.Context, maxWait time.Duration) error
	RecordRequest(ctx context.Context) error
}

// Client wraps the remote supplier HTTP API behind one retrying,
// rate-limited request primitive with transparent token lifecycle.
type Client struct {
	baseURL    string
	email      string
	password   string
	httpClient *http.Client
	limiter    RateLimiter
	settings   Settings
	tokens     *tokenManager
	policy     RetryPolicy
	logger     *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a supplier API client.
func NewClient(cfg config.SupplierConfig, limiter RateLimiter, settings Settings) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		email:    cfg.Email,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter:  limiter,
		settings: settings,
		tokens:   newTokenManager(settings),
		policy:   DefaultRetryPolicy(),
		logger:   util.GetLogger(),
		sleep:    sleepWithContext,
	}
}

// Authenticate exchanges credentials for a bearer token. Empty credentials
// fall back to the configured then last-stored pair.
func (c *Client) Authenticate(ctx context.Context, email, password string) (models.AuthToken, error) {
	if email == "" {
		email, password = c.email, c.password
	}
	if email == "" {
		var stored storedCredentials
		ok, err := c.settings.GetJSON(ctx, credentialsSettingsKey, &stored)
		if err != nil {
			return models.AuthToken{}, err
		}
		if ok {
			email, password = stored.Email, stored.Password
		}
	}
	if email == "" {
		return models.AuthToken{}, ErrMissingCredentials
	}

	body, err := c.Request(ctx, http.MethodPost, "/auth", nil, map[string]string{
		"email":    email,
		"password": password,
	}, false)
	if err != nil {
		return models.AuthToken{}, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	var resp AuthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.AuthToken{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if resp.Token == "" {
		return models.AuthToken{}, ErrInvalidResponse
	}

	expiry := time.Now().Add(defaultTokenTTL)
	if resp.Exp > 0 {
		expiry = time.Unix(resp.Exp, 0)
	}

	tok := models.AuthToken{Value: resp.Token, Expiry: expiry}
	if err := c.tokens.store(ctx, tok); err != nil {
		c.logger.Warn("Failed to persist supplier token", zap.Error(err))
	}
	if err := c.settings.SetJSON(ctx, credentialsSettingsKey, storedCredentials{Email: email, Password: password}); err != nil {
		c.logger.Warn("Failed to persist supplier credentials", zap.Error(err))
	}

	c.logger.Info("Supplier authentication succeeded", zap.Time("expiry", expiry))
	return tok, nil
}

// EnsureValidToken re-authenticates unless the current token has more than
// the safety buffer remaining.
func (c *Client) EnsureValidToken(ctx context.Context) error {
	tok, err := c.tokens.current(ctx)
	if err != nil {
		return err
	}
	if c.tokens.valid(tok) {
		return nil
	}
	_, err = c.Authenticate(ctx, "", "")
	return err
}

// Request issues one rate-limited HTTP call with the bounded retry loop all
// higher-level calls share. Transport failures, 429 and (for authenticated
// calls) 401 are retried within the policy; everything else surfaces
// immediately.
func (c *Client) Request(ctx context.Context, method, path string, params map[string]string, body interface{}, useAuth bool) (json.RawMessage, error) {
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if useAuth {
			if err := c.EnsureValidToken(ctx); err != nil {
				return nil, err
			}
		}

		if err := c.limiter.SmartWait(ctx, 0); err != nil {
			return nil, err
		}

		req, err := c.buildRequest(ctx, method, path, params, body, useAuth)
		if err != nil {
			return nil, err
		}

		if err := c.limiter.RecordRequest(ctx); err != nil {
			c.logger.Warn("Failed to record request in rate-limit window", zap.Error(err))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			util.SupplierRetriesTotal.WithLabelValues("transport").Inc()
			c.logger.Warn("Supplier request transport failure",
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Error(err))
			if attempt < c.policy.MaxAttempts {
				if err := c.sleep(ctx, c.policy.TransportBackoff); err != nil {
					return nil, err
				}
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		util.SupplierRequestsTotal.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

		switch {
		case resp.StatusCode == http.StatusUnauthorized && useAuth:
			lastErr = ErrUnauthorized
			util.SupplierRetriesTotal.WithLabelValues("unauthorized").Inc()
			c.tokens.invalidate()
			if attempt < c.policy.MaxAttempts {
				if _, err := c.Authenticate(ctx, "", ""); err != nil {
					return nil, err
				}
			}
			continue

		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = ErrRateLimited
			util.SupplierRetriesTotal.WithLabelValues("rate_limited").Inc()
			c.logger.Warn("Supplier returned 429", zap.String("path", path), zap.Int("attempt", attempt))
			if attempt < c.policy.MaxAttempts {
				if err := c.sleep(ctx, c.policy.RateLimitBackoff); err != nil {
					return nil, err
				}
			}
			continue

		case resp.StatusCode >= 400:
			return nil, &APIError{Code: resp.StatusCode, Message: parseErrorMessage(respBody)}

		default:
			return respBody, nil
		}
	}

	if lastErr == ErrUnauthorized || lastErr == ErrRateLimited {
		return nil, lastErr
	}
	return nil, &TransportError{Err: lastErr}
}

func (c *Client) buildRequest(ctx context.Context, method, path string, params map[string]string, body interface{}, useAuth bool) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	req.Header.Set("Content-Type", "application/json")
	if useAuth {
		tok, err := c.tokens.current(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "jwt "+tok.Value)
	}
	return req, nil
}

// parseErrorMessage pulls a human-readable message out of an error body.
func parseErrorMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return strings.TrimSpace(string(body))
}

// GetProducts lists products, applying the supplier's documented defaults:
// first page, maximum page size, enabled-only.
func (c *Client) GetProducts(ctx context.Context, params map[string]string) (*ProductsResponse, error) {
	merged := map[string]string{
		"page_no": "1",
		"limit":   strconv.Itoa(maxPageLimit),
		"enabled": "1",
	}
	for k, v := range params {
		merged[k] = v
	}

	body, err := c.Request(ctx, http.MethodGet, "/v2/products", merged, nil, true)
	if err != nil {
		return nil, err
	}

	var resp ProductsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode products response: %w", err)
	}
	return &resp, nil
}

// GetProductsBySKUs fetches a batch of SKUs in one call. Input past the
// supplier's 100-SKU limit is truncated; callers chunk larger sets.
func (c *Client) GetProductsBySKUs(ctx context.Context, skus []string) (*ProductsResponse, error) {
	if len(skus) > maxBatchSKUs {
		c.logger.Warn("SKU batch truncated to supplier limit",
			zap.Int("requested", len(skus)),
			zap.Int("limit", maxBatchSKUs))
		skus = skus[:maxBatchSKUs]
	}

	return c.GetProducts(ctx, map[string]string{
		"skus":  strings.Join(skus, ","),
		"limit": strconv.Itoa(maxBatchSKUs),
	})
}

// GetStock queries the stock endpoint, which has its own page-size ceiling.
func (c *Client) GetStock(ctx context.Context, req StockRequest) (*ProductsResponse, error) {
	if req.PageNo <= 0 {
		req.PageNo = 1
	}
	if req.Limit <= 0 || req.Limit > maxStockLimit {
		req.Limit = maxStockLimit
	}

	body, err := c.Request(ctx, http.MethodPost, "/stock", nil, req, true)
	if err != nil {
		return nil, err
	}

	var resp ProductsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode stock response: %w", err)
	}
	return &resp, nil
}

// PlaceOrder posts an order to the supplier. Delivery is at-least-once;
// idempotency is the remote side's concern.
func (c *Client) PlaceOrder(ctx context.Context, order OrderRequest) (*OrderResponse, error) {
	body, err := c.Request(ctx, http.MethodPost, "/order", nil, order, true)
	if err != nil {
		return nil, err
	}

	var resp OrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}
	return &resp, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
