package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed(t *testing.T, development bool, level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(level)
	logger, err := New(development, zap.WrapCore(func(zapcore.Core) zapcore.Core { return core }))
	require.NoError(t, err)
	return logger, logs
}

func TestRootLoggerIsNamed(t *testing.T) {
	t.Parallel()

	for _, dev := range []bool{true, false} {
		logger, err := New(dev)
		require.NoError(t, err)
		assert.Equal(t, Name, logger.Name())
		logger.Info("ready")
		_ = logger.Sync()
	}
}

func TestComponentNamesNestUnderRoot(t *testing.T) {
	t.Parallel()

	logger, logs := observed(t, false, zap.InfoLevel)
	logger.Named("fetch").With(zap.String("worker", "alpha")).Info("fetched", zap.String("url", "https://example.com/monsters"))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "bestiary-crawler.fetch", entries[0].LoggerName)
	assert.Equal(t, "alpha", entries[0].ContextMap()["worker"])
}

func TestProductionLevelIsInfo(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))

	dev, err := New(true)
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zap.DebugLevel))
}
