package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Manifest.FetchTimeout)
	assert.Equal(t, 5*time.Second, cfg.Beacon.Timeout)
	assert.Equal(t, 0.0, cfg.Playback.HandoffSkewSeconds)
	assert.Equal(t, 0.1, cfg.Playback.SyncToleranceSeconds)
	assert.Equal(t, []string{"memory"}, cfg.DeliveryLog.Sinks)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, time.Second, cfg.Server.StreamInterval)
	assert.Equal(t, 10*time.Minute, cfg.Server.SessionIdleTTL)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("VECTOR_ADPLAYER_HANDOFF_SKEW", "0.2")
	t.Setenv("VECTOR_ADPLAYER_MANIFEST_TIMEOUT", "3s")
	t.Setenv("VECTOR_ADPLAYER_DELIVERY_SINKS", "memory, redis")
	t.Setenv("VECTOR_ADPLAYER_REDIS_ENABLED", "true")
	t.Setenv("VECTOR_ADPLAYER_ENV", "production")
	t.Setenv("VECTOR_ADPLAYER_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.2, cfg.Playback.HandoffSkewSeconds)
	assert.Equal(t, 3*time.Second, cfg.Manifest.FetchTimeout)
	assert.Equal(t, []string{"memory", "redis"}, cfg.DeliveryLog.Sinks)
	assert.True(t, cfg.HasSink("redis"))
	assert.False(t, cfg.HasSink("postgres"))
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoad_InvalidValueFallsBackToDefault(t *testing.T) {
	t.Setenv("VECTOR_ADPLAYER_SYNC_TOLERANCE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.1, cfg.Playback.SyncToleranceSeconds)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "negative skew",
			env:     map[string]string{"VECTOR_ADPLAYER_HANDOFF_SKEW": "-1"},
			wantErr: "HANDOFF_SKEW",
		},
		{
			name:    "postgres sink without database",
			env:     map[string]string{"VECTOR_ADPLAYER_DELIVERY_SINKS": "postgres"},
			wantErr: "requires VECTOR_ADPLAYER_DB_ENABLED",
		},
		{
			name:    "unknown sink",
			env:     map[string]string{"VECTOR_ADPLAYER_DELIVERY_SINKS": "kafka"},
			wantErr: "unknown delivery sink",
		},
		{
			name:    "zero tolerance",
			env:     map[string]string{"VECTOR_ADPLAYER_SYNC_TOLERANCE": "0"},
			wantErr: "SYNC_TOLERANCE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
