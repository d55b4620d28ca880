package observability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/membership-service/internal/config"
	"github.com/spec-kit/membership-service/internal/observability"
)

func TestNewLogger_PerEnvironment(t *testing.T) {
	// GIVEN: Development and production logger configurations
	// WHEN: Building the logger
	// THEN: Both build, and the configured level is honored

	for _, env := range []string{"development", "production"} {
		logger, err := observability.NewLogger(config.LoggerConfig{Level: "warn", Env: env})
		require.NoError(t, err, "env=%s", env)
		assert.False(t, logger.Core().Enabled(zap.InfoLevel), "env=%s", env)
		assert.True(t, logger.Core().Enabled(zap.WarnLevel), "env=%s", env)
	}
}

func TestNewLogger_InvalidLevelFallsBack(t *testing.T) {
	logger, err := observability.NewLogger(config.LoggerConfig{Level: "nonsense", Env: "development"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
}
