package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsAppError(t *testing.T) {
	base := NotFound("message")
	wrapped := fmt.Errorf("load: %w", base)

	assert.Equal(t, http.StatusNotFound, GetHTTPStatus(wrapped))
	assert.Same(t, base, AsAppError(wrapped))
	assert.True(t, IsCode(wrapped, CodeNotFound))

	plain := errors.New("boom")
	assert.False(t, IsCode(plain, CodeInternalError))
	assert.Equal(t, CodeInternalError, AsAppError(plain).Code)
	assert.ErrorIs(t, AsAppError(plain), plain)
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(plain))
}

func TestExternalErrorUnwraps(t *testing.T) {
	cause := errors.New("deadline exceeded")
	err := ExternalError("gemini", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus())
	assert.Equal(t, "gemini", err.Details["service"])
	assert.Contains(t, err.Error(), "deadline exceeded")
}

func TestWithErrorKeepsCause(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := fmt.Errorf("decode: %w", BadRequest("invalid request body").WithError(cause))

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsCode(err, CodeBadRequest))
	assert.Equal(t, http.StatusBadRequest, GetHTTPStatus(err))
	assert.False(t, Retryable(err))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"plain error", errors.New("connection reset"), true},
		{"bad request", InvalidInput("tone", "unknown"), false},
		{"not found wrapped", fmt.Errorf("job: %w", NotFound("message")), false},
		{"database", DatabaseError("insert message", errors.New("timeout")), true},
		{"provider", ExternalError("openai", errors.New("503")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}
