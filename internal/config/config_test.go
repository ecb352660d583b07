package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "::1", cfg.Project.Host)
	assert.Equal(t, 0, cfg.Project.Port)
	assert.Equal(t, "::1", cfg.Status.Host)
	assert.Equal(t, 0, cfg.Status.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 64, cfg.Notify.Buffer)
	assert.Equal(t, 5*time.Second, cfg.Reconcile.InitialTimeout)
	assert.Equal(t, 50.0, cfg.Rate.PerSecond)
	assert.Equal(t, 100, cfg.Rate.Burst)
	assert.Empty(t, cfg.ProjectDir)
}

func TestLoadOverrides(t *testing.T) {
	resetViper(t)

	viper.Set("project_dir", "./site")
	viper.Set("project.host", "127.0.0.1")
	viper.Set("project.port", 8080)
	viper.Set("log.format", "json")
	viper.Set("reconcile.initial_timeout", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./site", cfg.ProjectDir)
	assert.Equal(t, "127.0.0.1", cfg.Project.Host)
	assert.Equal(t, 8080, cfg.Project.Port)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 30*time.Second, cfg.Reconcile.InitialTimeout)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value interface{}
	}{
		{"port out of range", "project.port", 70000},
		{"negative port", "status.port", -1},
		{"host with shell character", "project.host", "local;host"},
		{"host with slash", "status.host", "host/path"},
		{"bad log format", "log.format", "xml"},
		{"zero notify buffer", "notify.buffer", 0},
		{"negative timeout", "reconcile.initial_timeout", "-1s"},
		{"zero rate", "status.rate.per_second", 0},
		{"zero burst", "status.rate.burst", 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resetViper(t)
			viper.Set(tc.key, tc.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestListenAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8080", ListenConfig{Host: "127.0.0.1", Port: 8080}.Addr())
	assert.Equal(t, "[::1]:8080", ListenConfig{Host: "::1", Port: 8080}.Addr())
	assert.Equal(t, "[::1]:0", ListenConfig{Host: "::1"}.Addr())
	assert.Equal(t, "localhost:9000", ListenConfig{Host: "localhost", Port: 9000}.Addr())
}
