package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-recommender/internal/common/errors"
)

func newIntrospectionServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/realms/marketplace/protocol/openid-connect/token/introspect", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "recommender", r.PostForm.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("token") {
		case "good":
			_, _ = w.Write([]byte(`{"active":true,"sub":"user-1","exp":4102444800}`))
		case "expired":
			_, _ = w.Write([]byte(`{"active":true,"sub":"user-1","exp":1000}`))
		case "boom":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "forbidden":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			_, _ = w.Write([]byte(`{"active":false}`))
		}
	}))
}

func TestKeycloakClient_ValidateToken(t *testing.T) {
	var calls int32
	server := newIntrospectionServer(t, &calls)
	defer server.Close()

	k := NewKeycloakClient(server.URL, "marketplace", "recommender", "secret", time.Second)

	info, err := k.ValidateToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "user-1", info.Sub)

	// second call is answered from the token cache
	_, err = k.ValidateToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestKeycloakClient_Rejections(t *testing.T) {
	var calls int32
	server := newIntrospectionServer(t, &calls)
	defer server.Close()

	k := NewKeycloakClient(server.URL, "marketplace", "recommender", "secret", time.Second)

	tests := []struct {
		token string
		code  errors.ErrorCode
	}{
		{"", errors.ErrCodeUnauthenticated},
		{"revoked", errors.ErrCodeUnauthenticated},
		{"expired", errors.ErrCodeUnauthenticated},
		{"forbidden", errors.ErrCodeUnauthenticated},
		{"boom", errors.ErrCodeUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			_, err := k.ValidateToken(context.Background(), tt.token)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}
}
