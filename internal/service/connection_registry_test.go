package service

import (
	"testing"

	"whatscrm/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConnectionRegistry(t *testing.T) {
	configs := []models.ConnectionConfig{
		{NumberID: "1055001000000", Kind: "api", DisplayName: "Main Line", VerifyToken: "tok-main"},
		{NumberID: "qr-sales", Kind: "qr", ConnectionType: "qr", DisplayName: "Sales Phone"},
	}

	registry, err := NewConnectionRegistry(configs)
	require.NoError(t, err)
	assert.Equal(t, 2, registry.Count())

	api, ok := registry.Lookup("1055001000000")
	require.True(t, ok)
	assert.Equal(t, models.ConnectionKindAPI, api.Kind)
	assert.Equal(t, "api", api.ConnectionType)
	assert.Equal(t, "Main Line", api.DisplayName)
	assert.Equal(t, "tok-main", api.VerifyToken)

	qr, ok := registry.Lookup("qr-sales")
	require.True(t, ok)
	assert.Equal(t, models.ConnectionKindQR, qr.Kind)

	assert.True(t, registry.IsKnown("qr-sales"))
	assert.False(t, registry.IsKnown("9999999"))
}

func TestNewConnectionRegistry_ConnectionTypeDefaultsToKind(t *testing.T) {
	registry, err := NewConnectionRegistry([]models.ConnectionConfig{
		{NumberID: "1055001000000", Kind: "api"},
	})
	require.NoError(t, err)

	conn, ok := registry.Lookup("1055001000000")
	require.True(t, ok)
	assert.Equal(t, "api", conn.ConnectionType)
}

func TestNewConnectionRegistry_Validation(t *testing.T) {
	tests := []struct {
		name    string
		configs []models.ConnectionConfig
		wantErr string
	}{
		{
			name:    "empty number id",
			configs: []models.ConnectionConfig{{NumberID: "", Kind: "api"}},
			wantErr: "invalid connection number id",
		},
		{
			name:    "number id with spaces",
			configs: []models.ConnectionConfig{{NumberID: "bad id", Kind: "api"}},
			wantErr: "invalid connection number id",
		},
		{
			name:    "unknown kind",
			configs: []models.ConnectionConfig{{NumberID: "1055001000000", Kind: "carrier-pigeon"}},
			wantErr: "invalid connection kind",
		},
		{
			name: "duplicate number id",
			configs: []models.ConnectionConfig{
				{NumberID: "1055001000000", Kind: "api"},
				{NumberID: "1055001000000", Kind: "qr"},
			},
			wantErr: "duplicate connection number id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConnectionRegistry(tt.configs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewConnectionRegistry_EmptyConfigAllowed(t *testing.T) {
	registry, err := NewConnectionRegistry(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, registry.Count())
}

func TestConnectionRegistry_RegisterQR(t *testing.T) {
	registry, err := NewConnectionRegistry([]models.ConnectionConfig{
		{NumberID: "1055001000000", Kind: "api"},
	})
	require.NoError(t, err)

	conn := registry.RegisterQR("15551230000", "Paired Phone")
	assert.Equal(t, models.ConnectionKindQR, conn.Kind)
	assert.Equal(t, "qr", conn.ConnectionType)
	assert.Equal(t, "Paired Phone", conn.DisplayName)
	assert.Equal(t, 2, registry.Count())

	// Re-pairing updates the name without adding a second entry
	again := registry.RegisterQR("15551230000", "Renamed Phone")
	assert.Equal(t, "Renamed Phone", again.DisplayName)
	assert.Equal(t, 2, registry.Count())
	assert.Equal(t, []string{"1055001000000", "15551230000"}, registry.NumberIDs())
}

func TestConnectionRegistry_MatchesVerifyToken(t *testing.T) {
	registry, err := NewConnectionRegistry([]models.ConnectionConfig{
		{NumberID: "1055001000000", Kind: "api", VerifyToken: "tok-main"},
		{NumberID: "1055002000000", Kind: "api", VerifyToken: "tok-second"},
		{NumberID: "qr-sales", Kind: "qr", VerifyToken: "tok-ignored"},
	})
	require.NoError(t, err)

	assert.True(t, registry.MatchesVerifyToken("tok-main"))
	assert.True(t, registry.MatchesVerifyToken("tok-second"))
	assert.False(t, registry.MatchesVerifyToken("tok-wrong"))
	assert.False(t, registry.MatchesVerifyToken(""))

	// QR connections never answer webhook subscription checks
	assert.False(t, registry.MatchesVerifyToken("tok-ignored"))
}
