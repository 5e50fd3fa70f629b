package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FurqatMashrabjonov/speech-coach/internal/store"
)

type recordingRepo struct {
	mu     sync.Mutex
	events []store.LLMRequestEventData
	err    error
}

func (r *recordingRepo) AppendLLMRequest(_ context.Context, data store.LLMRequestEventData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, data)
	return r.err
}

func TestLogging_RecordsSuccess(t *testing.T) {
	repo := &recordingRepo{}
	mock := NewMockProvider(MockResponse{
		Content: json.RawMessage(`{"overallScore":8}`),
		Usage:   Usage{InputTokens: 12, OutputTokens: 4},
	})
	p := WithLogging(mock, "gemini", repo, zerolog.Nop())

	ctx := WithPurpose(context.Background(), "session-feedback")
	_, err := p.Generate(ctx, Request{Messages: []Message{{Role: RoleUser, Content: "transcript"}}})
	require.NoError(t, err)

	require.Len(t, repo.events, 1)
	ev := repo.events[0]
	assert.Equal(t, "gemini", ev.Provider)
	assert.Equal(t, "mock", ev.Model)
	assert.Equal(t, "session-feedback", ev.Purpose)
	assert.True(t, ev.Success)
	assert.Equal(t, 12, ev.InputTokens)
	assert.Equal(t, `{"overallScore":8}`, ev.ResponseBody)
	assert.Contains(t, ev.RequestBody, "[user]\ntranscript")
}

func TestLogging_RecordsFailure(t *testing.T) {
	repo := &recordingRepo{}
	mock := NewMockProvider(MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}})

	var buf bytes.Buffer
	p := WithLogging(mock, "gemini", repo, zerolog.New(&buf))

	_, err := p.Generate(context.Background(), Request{})
	require.Error(t, err)

	require.Len(t, repo.events, 1)
	assert.False(t, repo.events[0].Success)
	assert.Contains(t, repo.events[0].ErrorMessage, "down")
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestLogging_RepoErrorDoesNotFailRequest(t *testing.T) {
	repo := &recordingRepo{err: errors.New("disk full")}
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{}`)})
	p := WithLogging(mock, "mock", repo, zerolog.Nop())

	_, err := p.Generate(context.Background(), Request{})
	assert.NoError(t, err)
}

func TestLogging_NilRepo(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{}`)})
	p := WithLogging(mock, "mock", nil, zerolog.Nop())

	_, err := p.Generate(context.Background(), Request{})
	assert.NoError(t, err)
}

func TestSerializeRequest(t *testing.T) {
	out := serializeRequest(Request{
		System:   "be strict",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
		Schema:   &Schema{Name: "obj", Definition: map[string]any{"type": "object"}},
	})
	assert.Contains(t, out, "[system]\nbe strict")
	assert.Contains(t, out, "[user]\nhello")
	assert.Contains(t, out, `[schema: obj]`)
}

type slowProvider struct{}

func (slowProvider) Generate(ctx context.Context, _ Request) (*Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowProvider) ModelID() string { return "slow" }

func TestWithTimeout(t *testing.T) {
	mock := NewMockProvider()
	assert.Same(t, Provider(mock), WithTimeout(mock, 0))

	p := WithTimeout(slowProvider{}, 10*time.Millisecond)
	_, err := p.Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "slow", p.ModelID())
}

func TestNewProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "mock"

	p, err := NewProvider(context.Background(), cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "mock", p.ModelID())

	resp, err := p.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.NoError(t, ValidateJSON(&Schema{Name: "test-offline", Definition: map[string]any{"type": "object"}}, resp.Content))

	cfg.Provider = "nope"
	_, err = NewProvider(context.Background(), cfg, nil, zerolog.Nop())
	assert.Error(t, err)

	cfg.Provider = "anthropic"
	_, err = NewProvider(context.Background(), cfg, nil, zerolog.Nop())
	assert.Error(t, err)
}
