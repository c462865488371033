package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger_UnknownLevel(t *testing.T) {
	_, err := NewLogger(&Config{Level: "verbose", Env: "development"})
	assert.Error(t, err)
}

func TestNewLogger_Production(t *testing.T) {
	logger, err := NewLogger(&Config{Level: "warn", Env: "production"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.ErrorLevel))
}

func TestExtractLoggerFromContext(t *testing.T) {
	assert.NotNil(t, ExtractLoggerFromContext(context.Background()))

	logger := zap.NewExample()
	ctx := SetLoggerInContext(context.Background(), logger)
	assert.Same(t, logger, ExtractLoggerFromContext(ctx))
}
