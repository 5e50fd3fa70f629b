package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func retryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: time.Millisecond,
		MaxWait:     10 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func down() MockResponse {
	return MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}}
}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{"ok":true}`)})
	p := WithRetry(mock, retryConfig(), zerolog.Nop())

	resp, err := p.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, resp.Text())
	assert.Equal(t, 1, mock.CallCount())
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	mock := NewMockProvider(down(), MockResponse{Content: json.RawMessage(`{"ok":true}`)})
	p := WithRetry(mock, retryConfig(), zerolog.Nop())

	resp, err := p.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, resp.Text())
	assert.Equal(t, 2, mock.CallCount())
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	mock := NewMockProvider(down(), down(), down(), down())
	p := WithRetry(mock, retryConfig(), zerolog.Nop())

	_, err := p.Generate(context.Background(), Request{})
	var unavail *ErrProviderUnavailable
	assert.ErrorAs(t, err, &unavail)
	assert.Equal(t, 3, mock.CallCount())
}

func TestRetry_MaxTokensNotRetried(t *testing.T) {
	mock := NewMockProvider(MockResponse{Err: &ErrMaxTokensExceeded{Content: json.RawMessage(`{`)}})
	p := WithRetry(mock, retryConfig(), zerolog.Nop())

	_, err := p.Generate(context.Background(), Request{})
	var maxTok *ErrMaxTokensExceeded
	assert.ErrorAs(t, err, &maxTok)
	assert.Equal(t, 1, mock.CallCount())
}

func TestRetry_InvalidResponseRetriedOnce(t *testing.T) {
	invalid := MockResponse{Err: &ErrInvalidResponse{Err: errors.New("bad")}}
	mock := NewMockProvider(invalid, invalid, invalid)
	p := WithRetry(mock, retryConfig(), zerolog.Nop())

	_, err := p.Generate(context.Background(), Request{})
	var inv *ErrInvalidResponse
	assert.ErrorAs(t, err, &inv)
	assert.Equal(t, 2, mock.CallCount())
}

func TestRetry_ContextCancellation(t *testing.T) {
	mock := NewMockProvider(down(), down(), down())
	p := WithRetry(mock, RetryConfig{MaxAttempts: 3, InitialWait: time.Hour, MaxWait: time.Hour, Multiplier: 1}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Generate(ctx, Request{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, mock.CallCount())
}

func TestRetry_RateLimitRespectsRetryAfter(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrRateLimit{RetryAfter: 5 * time.Millisecond, Err: errors.New("429")}},
		MockResponse{Content: json.RawMessage(`{}`)},
	)
	p := WithRetry(mock, retryConfig(), zerolog.Nop())

	start := time.Now()
	_, err := p.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestRetry_ZeroAttemptsStillCallsOnce(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{}`)})
	p := WithRetry(mock, RetryConfig{}, zerolog.Nop())

	_, err := p.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, 1, mock.CallCount())
}

func TestRetry_ModelIDDelegates(t *testing.T) {
	p := WithRetry(NewMockProvider(), retryConfig(), zerolog.Nop())
	assert.Equal(t, "mock", p.ModelID())
}
