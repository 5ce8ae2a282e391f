package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"whatscrm/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeLogLevelConfig is writeRunConfig with the log level under test.
func writeLogLevelConfig(t *testing.T, logLevel string) {
	t.Helper()

	dir := t.TempDir()
	content := `{
		"server": {
			"port": 18085,
			"webhook_secret": "test-secret"
		},
		"connections": [
			{
				"number_id": "15550001111",
				"kind": "api",
				"verify_token": "verify-me"
			}
		],
		"database": {
			"path": "` + filepath.Join(dir, "test.db") + `"
		},
		"retry": {
			"initialBackoffMs": 10,
			"maxBackoffMs": 50,
			"maxAttempts": 2
		},
		"log_level": "` + logLevel + `"
	}`

	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	pointConfigAt(t, cfgPath)
}

func setVerbose(t *testing.T, on bool) {
	t.Helper()
	old := *verbose
	*verbose = on
	t.Cleanup(func() { *verbose = old })
}

func TestValidateConfigEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		config   *models.Config
		errorMsg string
	}{
		{
			name:     "no connections",
			config:   &models.Config{Database: models.DatabaseConfig{Path: "/tmp/whatscrm.db"}},
			errorMsg: "at least one connection is required",
		},
		{
			name: "missing database path",
			config: &models.Config{
				Connections: []models.ConnectionConfig{{NumberID: "15550001111", Kind: "api"}},
			},
			errorMsg: "database path is required",
		},
		{
			name: "valid",
			config: &models.Config{
				Connections: []models.ConnectionConfig{{NumberID: "15550001111", Kind: "api"}},
				Database:    models.DatabaseConfig{Path: "/tmp/whatscrm.db"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(tt.config)
			if tt.errorMsg != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRun_InvalidLogLevel(t *testing.T) {
	writeLogLevelConfig(t, "invalid_level")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// An unknown level is a warning, not a startup failure
	assert.NoError(t, run(ctx))
}

func TestLogLevelConfiguration(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		verbose  bool
	}{
		{name: "debug log level", logLevel: "debug"},
		{name: "info log level", logLevel: "info"},
		{name: "warn log level", logLevel: "warn"},
		{name: "error log level", logLevel: "error"},
		{name: "verbose flag overrides config", logLevel: "error", verbose: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeLogLevelConfig(t, tt.logLevel)
			setVerbose(t, tt.verbose)

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			assert.NoError(t, run(ctx))
		})
	}
}

func TestCLIFlagDefaults(t *testing.T) {
	configFlag := flag.Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "config.json", configFlag.DefValue)

	versionFlag := flag.Lookup("version")
	require.NotNil(t, versionFlag)
	assert.Equal(t, "false", versionFlag.DefValue)

	verboseFlag := flag.Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "false", verboseFlag.DefValue)
}
