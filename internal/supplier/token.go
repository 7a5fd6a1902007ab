package supplier

import (
	"context"
	"sync"
	"time"

	"supplier-sync/internal/models"
)

const (
	tokenSettingsKey = "supplier_auth_token"
	// Tokens this close to expiry are treated as already invalid.
	tokenBufferSeconds = 120
	// Applied when the auth response carries no expiry.
	defaultTokenTTL = 15 * time.Minute
)

// Settings is the narrow slice of the key-value store the client needs for
// token and credential persistence.
type Settings interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}) error
}

// tokenManager owns the bearer token and its expiry, persisting it so short
// lived processes reuse tokens instead of re-authenticating every start.
type tokenManager struct {
	settings Settings
	now      func() time.Time

	mu     sync.Mutex
	token  models.AuthToken
	loaded bool
}

func newTokenManager(settings Settings) *tokenManager {
	return &tokenManager{settings: settings, now: time.Now}
}

// current returns the cached token, loading the persisted one on first use.
func (m *tokenManager) current(ctx context.Context) (models.AuthToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		var stored models.AuthToken
		ok, err := m.settings.GetJSON(ctx, tokenSettingsKey, &stored)
		if err != nil {
			return models.AuthToken{}, err
		}
		if ok {
			m.token = stored
		}
		m.loaded = true
	}
	return m.token, nil
}

// valid reports whether tok has more than the buffer window remaining.
func (m *tokenManager) valid(tok models.AuthToken) bool {
	if tok.Value == "" {
		return false
	}
	return tok.Expiry.Sub(m.now()) > tokenBufferSeconds*time.Second
}

// store caches and persists a freshly issued token.
func (m *tokenManager) store(ctx context.Context, tok models.AuthToken) error {
	m.mu.Lock()
	m.token = tok
	m.loaded = true
	m.mu.Unlock()
	return m.settings.SetJSON(ctx, tokenSettingsKey, tok)
}

// invalidate drops the cached token, forcing the next call to re-authenticate.
func (m *tokenManager) invalidate() {
	m.mu.Lock()
	m.token = models.AuthToken{}
	m.mu.Unlock()
}
