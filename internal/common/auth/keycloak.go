// internal/common/auth/keycloak.go
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"project-recommender/internal/common/errors"
	commonhttp "project-recommender/internal/common/http"
)

const (
	tokenCacheSize = 4096
	tokenCacheTTL  = 30 * time.Second
)

// KeycloakClient validates bearer tokens through the realm's introspection
// endpoint. Active tokens are remembered briefly so a burst of requests
// from one user costs one introspection.
type KeycloakClient struct {
	client       *commonhttp.Client
	realm        string
	clientID     string
	clientSecret string
	cache        *expirable.LRU[string, *TokenInfo]
	now          func() time.Time
}

// TokenInfo holds the information returned by the token introspection endpoint.
type TokenInfo struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"` // seconds since epoch
	Iat       int64  `json:"iat,omitempty"`
	Sub       string `json:"sub,omitempty"` // user id
	Iss       string `json:"iss,omitempty"`
}

func NewKeycloakClient(baseURL, realm, clientID, clientSecret string, timeout time.Duration) *KeycloakClient {
	return &KeycloakClient{
		client:       commonhttp.NewClient(baseURL, timeout),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		cache:        expirable.NewLRU[string, *TokenInfo](tokenCacheSize, nil, tokenCacheTTL),
		now:          time.Now,
	}
}

// ValidateToken checks if an access token is valid and active.
func (k *KeycloakClient) ValidateToken(ctx context.Context, token string) (*TokenInfo, error) {
	if token == "" {
		return nil, errors.NewUnauthenticatedError("missing bearer token")
	}
	cacheKey := tokenKey(token)
	if info, ok := k.cache.Get(cacheKey); ok && !k.expired(info) {
		return info, nil
	}

	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", "access_token")
	form.Set("client_id", k.clientID)
	form.Set("client_secret", k.clientSecret)

	var info TokenInfo
	path := fmt.Sprintf("/realms/%s/protocol/openid-connect/token/introspect", url.PathEscape(k.realm))
	if err := k.client.PostForm(ctx, path, form, &info); err != nil {
		var statusErr *commonhttp.StatusError
		if stderrors.As(err, &statusErr) && !isTransientHTTPError(statusErr.StatusCode) {
			return nil, errors.NewUnauthenticatedError(fmt.Sprintf("token introspection rejected with status %d", statusErr.StatusCode))
		}
		return nil, errors.NewUpstreamUnavailableError("keycloak", err)
	}

	if !info.Active || info.Sub == "" || k.expired(&info) {
		return nil, errors.NewUnauthenticatedError("token is not active")
	}
	k.cache.Add(cacheKey, &info)
	return &info, nil
}

func (k *KeycloakClient) expired(info *TokenInfo) bool {
	return info.Exp > 0 && k.now().Unix() >= info.Exp
}

// tokenKey hashes the token so the cache never holds it raw.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// isTransientHTTPError returns true if the HTTP status code indicates a potentially transient error.
func isTransientHTTPError(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
