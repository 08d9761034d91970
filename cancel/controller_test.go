package cancel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyflow-ai/storyflow/types"
)

func TestStartInvalidatesPreviousToken(t *testing.T) {
	c := New(nil)

	t1, ctx1 := c.Start(context.Background())
	assert.False(t, t1.Cancelled())
	assert.NoError(t, t1.Err())

	t2, ctx2 := c.Start(context.Background())
	assert.True(t, t1.Cancelled(), "starting a new operation aborts the prior one")
	assert.False(t, t2.Cancelled())

	select {
	case <-ctx1.Done():
	default:
		t.Error("prior context should be cancelled")
	}
	select {
	case <-ctx2.Done():
		t.Error("live context must not be cancelled")
	default:
	}
}

func TestStopInvalidatesWithoutNewToken(t *testing.T) {
	c := New(nil)
	tok, ctx := c.Start(context.Background())

	c.Stop()
	assert.True(t, tok.Cancelled())
	select {
	case <-ctx.Done():
	default:
		t.Error("context should be cancelled on stop")
	}

	err := tok.Err()
	require.Error(t, err)
	assert.True(t, types.IsStopped(err))
	assert.Equal(t, types.StoppedMessage, types.UserMessage(err))

	// Idempotent.
	c.Stop()
}

func TestStopRunsHooks(t *testing.T) {
	c := New(nil)
	calls := 0
	c.OnStop(func() { calls++ })
	c.OnStop(func() { calls++ })

	c.Start(context.Background())
	c.Stop()
	assert.Equal(t, 2, calls)

	c.Stop()
	assert.Equal(t, 4, calls, "hooks run on every stop")
}

func TestCheckTokenBeforeMutating(t *testing.T) {
	// The caller-loop pattern: resume from a service call, check the token,
	// then mutate. A stale token must be detectable after resume.
	c := New(nil)
	tok, _ := c.Start(context.Background())

	// Simulated suspension during which the user hits stop.
	c.Stop()

	if tok.Err() == nil {
		t.Fatal("resume after stop must observe the invalidated token")
	}
}
