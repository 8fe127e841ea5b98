package utils

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cppla/attachguard/config"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	require.Equal(t, zapcore.WarnLevel, parseLevel(" warn "))
	require.Equal(t, zapcore.InfoLevel, parseLevel(""))
	require.Equal(t, zapcore.InfoLevel, parseLevel("loud"))
}

func TestInitLoggerWritesRollingFile(t *testing.T) {
	prevLogger, prevSugar := Logger, Sugar
	t.Cleanup(func() { Logger, Sugar = prevLogger, prevSugar })

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	require.NoError(t, InitLogger(config.AppConfig{LogLevel: "info", LogPath: path}))

	Named("pipeline").Infow("attachment processed", "id", 7)
	Named("pipeline").Debug("hidden")
	require.NoError(t, Logger.Sync())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	require.Contains(t, out, `"component":"pipeline"`)
	require.Contains(t, out, `"service":"attachguard"`)
	require.Contains(t, out, `"id":7`)
	require.False(t, strings.Contains(out, "hidden"))
}

func TestGraceServerRunsShutdownHooks(t *testing.T) {
	Sugar = zap.NewNop().Sugar()

	hooked := make(chan struct{})
	s := &graceServer{
		srv:             &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()},
		shutdownTimeout: time.Second,
	}
	WithOnShutdown(func() { close(hooked) })(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	select {
	case <-hooked:
	case <-time.After(time.Second):
		t.Fatal("shutdown hook not called")
	}
}
