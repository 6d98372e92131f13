package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewRedisPings(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedis(context.Background(), "redis://"+mr.Addr(), false, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	require.True(t, mr.Exists("k"))
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-url", false, zerolog.Nop())
	require.ErrorContains(t, err, "parse redis url")
}

func TestNewRedisFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedis(context.Background(), "redis://"+addr, false, zerolog.Nop())
	require.ErrorContains(t, err, "ping redis")
}

func TestCloseToleratesNil(t *testing.T) {
	var deps *Dependencies
	require.NoError(t, deps.Close())
	require.NoError(t, (&Dependencies{}).Close())
}
