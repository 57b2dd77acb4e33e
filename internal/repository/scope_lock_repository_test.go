package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRedisScopeLockWithoutClientIsNoop(t *testing.T) {
	lock := NewRedisScopeLock(nil, 0, nil)
	require.Equal(t, 2*time.Minute, lock.ttl)

	release, err := lock.Acquire(context.Background(), "dept:1:sem:1")
	require.NoError(t, err)
	require.NotNil(t, release)
	release()

	again, err := lock.Acquire(context.Background(), "dept:1:sem:1")
	require.NoError(t, err)
	again()
}
