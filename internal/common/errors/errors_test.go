package errors

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	warns, errors []string
}

func (l *recordingLogger) Warn(msg string, _ map[string]interface{}) {
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) Error(msg string, _ map[string]interface{}) {
	l.errors = append(l.errors, msg)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		status    int
		retryable bool
		category  string
	}{
		{ErrCodeInvalidRequest, http.StatusBadRequest, false, "VALIDATION"},
		{ErrCodeUnauthenticated, http.StatusUnauthorized, false, "AUTH"},
		{ErrCodeUpstreamUnavailable, http.StatusServiceUnavailable, true, "UPSTREAM"},
		{ErrCodeComputeTimeout, http.StatusGatewayTimeout, true, "TIMEOUT"},
		{ErrCodeCacheUnavailable, http.StatusServiceUnavailable, true, "CACHE"},
		{ErrCodeResourceNotFound, http.StatusNotFound, false, "VALIDATION"},
		{ErrCodeRateLimited, http.StatusTooManyRequests, true, "THROTTLE"},
		{ErrCodeInternal, http.StatusInternalServerError, false, "OTHER"},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.code))
			assert.Equal(t, tt.retryable, IsRetryableErrorCode(tt.code))
			assert.Equal(t, tt.category, GetErrorCategory(tt.code))
		})
	}
}

func TestStandardError_Unwrap(t *testing.T) {
	err := NewUpstreamUnavailableError("catalog", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "catalog", err.Metadata["service"])
	assert.True(t, err.Retryable)

	wrapped := fmt.Errorf("load: %w", err)
	assert.True(t, HasCode(wrapped, ErrCodeUpstreamUnavailable))
	assert.False(t, HasCode(wrapped, ErrCodeInternal))
	assert.Same(t, err, AsStandardError(wrapped))
}

func TestAsStandardError_WrapsUnknown(t *testing.T) {
	assert.Nil(t, AsStandardError(nil))

	stdErr := AsStandardError(assert.AnError)
	assert.Equal(t, ErrCodeInternal, stdErr.Code)
	assert.ErrorIs(t, stdErr, assert.AnError)
}

func TestErrorHandler_WriteError(t *testing.T) {
	t.Run("client error logs a warning", func(t *testing.T) {
		log := &recordingLogger{}
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/u1/recommendations", nil)

		NewErrorHandler(log).WriteError(rec, req,
			NewInvalidRequestError("limit out of range").WithMetadata("fields", []string{"limit"}))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var body struct {
			Error StandardError `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, ErrCodeInvalidRequest, body.Error.Code)
		assert.Equal(t, "limit out of range", body.Error.Details)
		assert.Len(t, log.warns, 1)
		assert.Empty(t, log.errors)
	})

	t.Run("unknown error is internal", func(t *testing.T) {
		log := &recordingLogger{}
		rec := httptest.NewRecorder()

		NewErrorHandler(log).WriteError(rec, nil, assert.AnError)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Len(t, log.errors, 1)
	})
}
