package nanolog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWithNoOutputsReturnsNop(t *testing.T) {
	log, err := New(Config{})
	require.NoError(t, err)
	require.NotNil(t, log)
	log.Info("should not panic")
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nanogod.log")
	log, err := New(Config{Level: "debug", FilePath: path})
	require.NoError(t, err)

	log.Info("started", zap.String("component", "test"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "started")
	require.Contains(t, string(data), "component")
}

func TestNamedScopesLogger(t *testing.T) {
	log, err := New(Config{Console: true})
	require.NoError(t, err)
	scoped := Named(log, "blockprocessor")
	require.Equal(t, "blockprocessor", scoped.Name())
}

func TestLevelMapsTraceAndDebugToZapDebug(t *testing.T) {
	require.Equal(t, level("trace"), level("debug"))
}
