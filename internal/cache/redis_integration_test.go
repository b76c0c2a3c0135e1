//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aldoetobex/falacomigo-backend/internal/testutil"
)

func TestAllowPoll(t *testing.T) {
	ctx := context.Background()
	addr, stop, err := testutil.StartRedis(ctx)
	require.NoError(t, err)
	t.Cleanup(stop)

	rc, err := NewRedisClient(addr, "", 0, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	ok, err := rc.AllowPoll(ctx, "VM20250101120000ABCDEF", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rc.AllowPoll(ctx, "VM20250101120000ABCDEF", time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second poll inside the interval")

	ok, err = rc.AllowPoll(ctx, "VM20250101120000FFFFFF", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "slots are per transaction")

	assert.Eventually(t, func() bool {
		ok, err := rc.AllowPoll(ctx, "VM20250101120000ABCDEF", time.Second)
		return err == nil && ok
	}, 5*time.Second, 100*time.Millisecond)
}
