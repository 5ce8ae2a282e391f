package config

import (
	"testing"

	"whatscrm/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MultiConnection(t *testing.T) {
	tests := []struct {
		name           string
		configContent  string
		expectedErr    bool
		errorContains  string
		validateConfig func(t *testing.T, cfg *models.Config)
	}{
		{
			name: "Valid multi-connection configuration",
			configContent: `{
				"database": {
					"path": "./test.db"
				},
				"connections": [
					{
						"number_id": "123456789012345",
						"kind": "api",
						"display_name": "Main Line",
						"verify_token": "verify-main"
					},
					{
						"number_id": "qr-sales",
						"kind": "qr",
						"display_name": "Sales Desk"
					}
				],
				"bridge": {
					"enabled": true,
					"store_path": "./bridge.db",
					"number_id": "qr-sales",
					"history_sync": true
				}
			}`,
			expectedErr: false,
			validateConfig: func(t *testing.T, cfg *models.Config) {
				assert.Len(t, cfg.Connections, 2)
				assert.Equal(t, "123456789012345", cfg.Connections[0].NumberID)
				assert.Equal(t, "api", cfg.Connections[0].Kind)
				assert.Equal(t, "qr-sales", cfg.Connections[1].NumberID)
				assert.Equal(t, "qr", cfg.Connections[1].Kind)
				assert.True(t, cfg.Bridge.Enabled)
				assert.True(t, cfg.Bridge.HistorySync)
				assert.Equal(t, "qr-sales", cfg.Bridge.NumberID)
			},
		},
		{
			name: "Missing connections array",
			configContent: `{
				"database": {
					"path": "./test.db"
				}
			}`,
			expectedErr:   true,
			errorContains: "connections array is required",
		},
		{
			name: "Duplicate connection number ids",
			configContent: `{
				"database": {
					"path": "./test.db"
				},
				"connections": [
					{"number_id": "123456789012345", "kind": "api"},
					{"number_id": "123456789012345", "kind": "qr"}
				]
			}`,
			expectedErr:   true,
			errorContains: "duplicate connection number id: 123456789012345",
		},
		{
			name: "Empty connection number id",
			configContent: `{
				"database": {
					"path": "./test.db"
				},
				"connections": [
					{"number_id": "", "kind": "api"}
				]
			}`,
			expectedErr:   true,
			errorContains: "empty number id in connection 0",
		},
		{
			name: "Invalid connection kind",
			configContent: `{
				"database": {
					"path": "./test.db"
				},
				"connections": [
					{"number_id": "123456789012345", "kind": "sms"}
				]
			}`,
			expectedErr:   true,
			errorContains: "invalid kind",
		},
		{
			name: "Bridge without store path",
			configContent: `{
				"database": {
					"path": "./test.db"
				},
				"connections": [
					{"number_id": "qr-sales", "kind": "qr"}
				],
				"bridge": {
					"enabled": true,
					"number_id": "qr-sales"
				}
			}`,
			expectedErr:   true,
			errorContains: "bridge store path is required",
		},
		{
			name: "Bridge referencing unknown connection",
			configContent: `{
				"database": {
					"path": "./test.db"
				},
				"connections": [
					{"number_id": "qr-sales", "kind": "qr"}
				],
				"bridge": {
					"enabled": true,
					"store_path": "./bridge.db",
					"number_id": "qr-support"
				}
			}`,
			expectedErr:   true,
			errorContains: "does not match any configured connection",
		},
		{
			name: "Bridge referencing api connection",
			configContent: `{
				"database": {
					"path": "./test.db"
				},
				"connections": [
					{"number_id": "123456789012345", "kind": "api"}
				],
				"bridge": {
					"enabled": true,
					"store_path": "./bridge.db",
					"number_id": "123456789012345"
				}
			}`,
			expectedErr:   true,
			errorContains: "must reference a \"qr\" connection",
		},
		{
			name: "Dispatch target with internal URL",
			configContent: `{
				"database": {
					"path": "./test.db"
				},
				"connections": [
					{"number_id": "123456789012345", "kind": "api"}
				],
				"dispatch": {
					"targets": [
						{"name": "crm", "url": "http://localhost:3000/hook"}
					]
				}
			}`,
			expectedErr:   true,
			errorContains: "dispatch target crm",
		},
		{
			name: "Dispatch target with internal URL allowed by flag",
			configContent: `{
				"database": {
					"path": "./test.db"
				},
				"connections": [
					{"number_id": "123456789012345", "kind": "api"}
				],
				"dispatch": {
					"allow_loopback": true,
					"targets": [
						{"name": "crm", "url": "http://localhost:3000/hook"}
					]
				}
			}`,
			expectedErr: false,
			validateConfig: func(t *testing.T, cfg *models.Config) {
				require.Len(t, cfg.Dispatch.Targets, 1)
				assert.Equal(t, "http://localhost:3000/hook", cfg.Dispatch.Targets[0].URL)
			},
		},
		{
			name: "Duplicate dispatch target names",
			configContent: `{
				"database": {
					"path": "./test.db"
				},
				"connections": [
					{"number_id": "123456789012345", "kind": "api"}
				],
				"dispatch": {
					"targets": [
						{"name": "crm", "url": "https://a.example.com/hook"},
						{"name": "crm", "url": "https://b.example.com/hook"}
					]
				}
			}`,
			expectedErr:   true,
			errorContains: "duplicate dispatch target name: crm",
		},
		{
			name: "Dispatch target without name",
			configContent: `{
				"database": {
					"path": "./test.db"
				},
				"connections": [
					{"number_id": "123456789012345", "kind": "api"}
				],
				"dispatch": {
					"targets": [
						{"name": "", "url": "https://crm.example.com/hook"}
					]
				}
			}`,
			expectedErr:   true,
			errorContains: "dispatch target 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, tt.configContent))

			if tt.expectedErr {
				assert.Error(t, err)
				if tt.errorContains != "" {
					assert.Contains(t, err.Error(), tt.errorContains)
				}
			} else {
				assert.NoError(t, err)
				require.NotNil(t, cfg)
				if tt.validateConfig != nil {
					tt.validateConfig(t, cfg)
				}
			}
		})
	}
}
