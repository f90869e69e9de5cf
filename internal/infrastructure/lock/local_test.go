package lock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_SkipIfHeld(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, ok, err := l.TryAcquire(ctx, "realt:tokens")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryAcquire(ctx, "realt:tokens")
	require.NoError(t, err)
	assert.False(t, ok)

	other, ok, _ := l.TryAcquire(ctx, "realt:holders")
	assert.True(t, ok, "keys are independent")
	other()

	release()
	release() // idempotent

	again, ok, _ := l.TryAcquire(ctx, "realt:tokens")
	assert.True(t, ok)
	again()
}
