package invoker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentoven/psymarket/internal/invoker"
	"github.com/agentoven/psymarket/pkg/contracts"
	"github.com/agentoven/psymarket/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDriver returns a canned result or error and records its inputs.
type mockDriver struct {
	kind      string
	result    *models.InvocationResult
	err       error
	delay     time.Duration
	calls     int
	lastCreds map[string]string
}

func (m *mockDriver) Kind() string { return m.kind }

func (m *mockDriver) Call(ctx context.Context, _ models.ProviderDescriptor, _ models.InvocationRequest, creds map[string]string) (*models.InvocationResult, error) {
	m.calls++
	m.lastCreds = creds
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return nil, nil
	}
	r := *m.result
	return &r, nil
}

func descriptor(creds ...string) models.ProviderDescriptor {
	return models.ProviderDescriptor{
		Name:                "Mock Chat",
		Class:               models.ServiceChat,
		Kind:                "mock",
		Model:               "mock-1",
		RequiredCredentials: creds,
		Role:                models.RolePrimary,
	}
}

func chatRequest() models.InvocationRequest {
	return models.InvocationRequest{Class: models.ServiceChat, Prompt: "hello"}
}

func TestInvoke_MissingCredential(t *testing.T) {
	drv := &mockDriver{kind: "mock", result: &models.InvocationResult{Content: "x"}}
	inv := invoker.New(contracts.SecretMap{"A_KEY": "set"}, invoker.WithDrivers(drv))

	_, err := inv.Invoke(context.Background(), descriptor("A_KEY", "B_KEY"), chatRequest())

	var missing *invoker.MissingCredentialError
	require.True(t, errors.As(err, &missing), "Invoke() error = %v, want *MissingCredentialError", err)
	assert.Equal(t, "B_KEY", missing.Credential)
	assert.Equal(t, "Mock Chat", missing.Provider)
	assert.Zero(t, drv.calls, "driver must not be called without credentials")
}

func TestInvoke_PassesCredentials(t *testing.T) {
	drv := &mockDriver{kind: "mock", result: &models.InvocationResult{Content: "answer"}}
	inv := invoker.New(contracts.SecretMap{"A_KEY": "k1", "OPT": "o1"}, invoker.WithDrivers(drv))

	desc := descriptor("A_KEY")
	desc.OptionalCredentials = []string{"OPT", "UNSET_OPT"}
	res, err := inv.Invoke(context.Background(), desc, chatRequest())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"A_KEY": "k1", "OPT": "o1"}, drv.lastCreds)
	assert.Equal(t, "Mock Chat", res.Provider, "provider name is stamped from the descriptor")
	assert.Equal(t, "mock-1", res.Model)
}

func TestInvoke_WrapsDriverError(t *testing.T) {
	cause := errors.New("status 429: rate limited")
	drv := &mockDriver{kind: "mock", err: cause}
	inv := invoker.New(contracts.SecretMap{}, invoker.WithDrivers(drv))

	_, err := inv.Invoke(context.Background(), descriptor(), chatRequest())

	var callErr *invoker.ProviderCallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, "Mock Chat", callErr.Provider)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, drv.calls, "invoker must not retry")
}

func TestInvoke_EmptyResponse(t *testing.T) {
	tests := []struct {
		name   string
		result *models.InvocationResult
	}{
		{"nil result", nil},
		{"blank content", &models.InvocationResult{Content: "  \n\t "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := &mockDriver{kind: "mock", result: tt.result}
			inv := invoker.New(contracts.SecretMap{}, invoker.WithDrivers(drv))

			_, err := inv.Invoke(context.Background(), descriptor(), chatRequest())
			var empty *invoker.EmptyResponseError
			assert.True(t, errors.As(err, &empty), "Invoke() error = %v, want *EmptyResponseError", err)
		})
	}
}

func TestInvoke_SearchHitsAreNotEmpty(t *testing.T) {
	drv := &mockDriver{kind: "mock", result: &models.InvocationResult{
		Results: []models.SearchHit{{Title: "t", URL: "https://x", Snippet: "s"}},
	}}
	inv := invoker.New(contracts.SecretMap{}, invoker.WithDrivers(drv))

	res, err := inv.Invoke(context.Background(), descriptor(), chatRequest())
	require.NoError(t, err)
	assert.Len(t, res.Results, 1)
}

func TestInvoke_Timeout(t *testing.T) {
	drv := &mockDriver{kind: "mock", delay: time.Second, result: &models.InvocationResult{Content: "late"}}
	inv := invoker.New(contracts.SecretMap{}, invoker.WithDrivers(drv), invoker.WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := inv.Invoke(context.Background(), descriptor(), chatRequest())

	var callErr *invoker.ProviderCallError
	require.True(t, errors.As(err, &callErr), "Invoke() error = %v, want *ProviderCallError", err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestInvoke_UnknownKind(t *testing.T) {
	inv := invoker.New(contracts.SecretMap{})

	_, err := inv.Invoke(context.Background(), descriptor(), chatRequest())
	var callErr *invoker.ProviderCallError
	assert.True(t, errors.As(err, &callErr))
}

func TestInvoke_RateLimitHonoursContext(t *testing.T) {
	drv := &mockDriver{kind: "mock", result: &models.InvocationResult{Content: "ok"}}
	inv := invoker.New(contracts.SecretMap{}, invoker.WithDrivers(drv), invoker.WithRateLimit(0.001, 1))

	_, err := inv.Invoke(context.Background(), descriptor(), chatRequest())
	require.NoError(t, err, "first call consumes the burst")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = inv.Invoke(ctx, descriptor(), chatRequest())
	assert.Error(t, err, "second call cannot get a token before the deadline")
	assert.Equal(t, 1, drv.calls)
}

func TestMissingCredentials(t *testing.T) {
	inv := invoker.New(contracts.SecretMap{"A": "1", "B": ""})
	assert.Equal(t, []string{"B", "C"}, inv.MissingCredentials(descriptor("A", "B", "C")))
	assert.Empty(t, inv.MissingCredentials(descriptor()))
}
