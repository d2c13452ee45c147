package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftsync/driftsync/internal/config"
)

func TestBuildLogger_Default(t *testing.T) {
	resetFlags(t)

	logger := buildLogger(nil)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
}

func TestBuildLogger_Verbose(t *testing.T) {
	resetFlags(t)
	flagVerbose = true

	logger := buildLogger(nil)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_Debug(t *testing.T) {
	resetFlags(t)
	flagDebug = true

	logger := buildLogger(nil)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_ConfigDebugLevel(t *testing.T) {
	resetFlags(t)

	cfg := &config.Config{Logging: config.LoggingConfig{LogLevel: "debug"}}

	logger := buildLogger(cfg)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_QuietOverridesConfig(t *testing.T) {
	resetFlags(t)
	flagQuiet = true

	cfg := &config.Config{Logging: config.LoggingConfig{LogLevel: "debug"}}

	logger := buildLogger(cfg)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelError))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestResolveConfigPath_FlagWins(t *testing.T) {
	resetFlags(t)
	flagConfigPath = "/flag/config.toml"

	got := resolveConfigPath(config.EnvOverrides{ConfigPath: "/env/config.toml"})

	assert.Equal(t, "/flag/config.toml", got)
}

func TestResolveConfigPath_EnvFallback(t *testing.T) {
	resetFlags(t)

	got := resolveConfigPath(config.EnvOverrides{ConfigPath: "/env/config.toml"})

	assert.Equal(t, "/env/config.toml", got)
}

func TestMustCLIContext_PanicsWithoutContext(t *testing.T) {
	assert.Panics(t, func() {
		mustCLIContext(context.Background())
	})
}

func TestCLIContextFrom_RoundTrip(t *testing.T) {
	cc := &CLIContext{Cfg: &config.Config{}, Logger: testLogger()}

	ctx := context.WithValue(context.Background(), cliContextKey{}, cc)

	assert.Same(t, cc, cliContextFrom(ctx))
}

// resetFlags restores the package-level flag variables after the test, so
// tests running in the same binary don't leak flag state into each other.
func resetFlags(t *testing.T) {
	t.Helper()

	oldConfigPath, oldJSON, oldVerbose, oldDebug, oldQuiet := flagConfigPath, flagJSON, flagVerbose, flagDebug, flagQuiet

	t.Cleanup(func() {
		flagConfigPath, flagJSON, flagVerbose, flagDebug, flagQuiet = oldConfigPath, oldJSON, oldVerbose, oldDebug, oldQuiet
	})

	flagConfigPath, flagJSON, flagVerbose, flagDebug, flagQuiet = "", false, false, false, false
}
