package ksatagent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"BACKEND_URL", "STREAM_TIMEOUT", "LIST_TIMEOUT", "LOAD_TIMEOUT", "PORT", "CACHE_DB", "LOG_DIR", "VERBOSE"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	assert.Equal(t, DefaultBackendURL, cfg.BackendURL)
	assert.Equal(t, DefaultStreamTimeout, cfg.StreamTimeout)
	assert.Equal(t, DefaultListTimeout, cfg.ListTimeout)
	assert.Equal(t, DefaultLoadTimeout, cfg.LoadTimeout)
	assert.Equal(t, "8180", cfg.Port)
	assert.False(t, cfg.Verbose)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://backend:9000/")
	t.Setenv("STREAM_TIMEOUT", "120")
	t.Setenv("LIST_TIMEOUT", "1500ms")
	t.Setenv("LOAD_TIMEOUT", "bogus")
	t.Setenv("VERBOSE", "true")

	cfg := LoadConfig()
	assert.Equal(t, "http://backend:9000", cfg.BackendURL)
	assert.Equal(t, 120*time.Second, cfg.StreamTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.ListTimeout)
	assert.Equal(t, DefaultLoadTimeout, cfg.LoadTimeout)
	assert.True(t, cfg.Verbose)
}
