package app

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_Levels(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"WARN":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"":      zapcore.InfoLevel,
		"loud":  zapcore.InfoLevel,
	}
	for in, want := range cases {
		logger, err := newLogger(in)
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(want), in)
		if want > zapcore.DebugLevel {
			assert.False(t, logger.Core().Enabled(want-1), in)
		}
	}
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := newRedisClient("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = newRedisClient("::not a url::")
	assert.Error(t, err)
}

func TestServe_DrainsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}, zap.NewNop())
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServe_ReportsListenFailure(t *testing.T) {
	err := serve(context.Background(), &http.Server{Addr: "256.0.0.1:bad"}, zap.NewNop())
	assert.Error(t, err)
}
