package cache

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-scheduler/pkg/config"
)

func TestNewRedisReportsUnreachableServer(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	client, err := NewRedis(context.Background(), config.RedisConfig{Host: "127.0.0.1", Port: port})
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "ping redis at 127.0.0.1:")
}

func TestNewRedisHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRedis(ctx, config.RedisConfig{Host: "127.0.0.1", Port: 6379})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
