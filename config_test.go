package medrex_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bjaus/medrex"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("MEDREX_WORKERS", "4")
	t.Setenv("MEDREX_RETRIES", "5")
	t.Setenv("MEDREX_CHUNK_TIMEOUT", "30s")
	t.Setenv("MEDREX_VIOLATION_ACTION", "quarantine")
	t.Setenv("MEDREX_MEMORY_FRACTION", "0.5")
	t.Setenv("MEDREX_PREFERRED_DATE_LAYOUT", "02/01/2006")

	cfg, err := medrex.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Workers)
	require.Equal(t, 5, cfg.Retries)
	require.Equal(t, 30*time.Second, cfg.ChunkTimeout)
	require.Equal(t, string(medrex.ActionQuarantine), cfg.ViolationAction)
	require.Equal(t, 0.5, cfg.MemoryFraction)
	require.Equal(t, "02/01/2006", cfg.PreferredDateLayout)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := medrex.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, string(medrex.ActionDrop), cfg.ViolationAction)
	require.Zero(t, cfg.Workers)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     medrex.Config
		wantErr bool
	}{
		{name: "zero value", cfg: medrex.Config{}},
		{name: "valid action", cfg: medrex.Config{ViolationAction: "flag"}},
		{name: "unknown action", cfg: medrex.Config{ViolationAction: "explode"}, wantErr: true},
		{name: "memory fraction too large", cfg: medrex.Config{MemoryFraction: 1.5}, wantErr: true},
		{name: "safety factor below one", cfg: medrex.Config{SafetyFactor: 0.5}, wantErr: true},
		{name: "negative retries", cfg: medrex.Config{Retries: -1}, wantErr: true},
		{name: "negative retention", cfg: medrex.Config{Retention: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
