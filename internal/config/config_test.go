package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "redis", cfg.TaskStore)
	assert.Equal(t, 10, cfg.Workers)
	assert.Equal(t, 100, cfg.QueueSize)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.False(t, cfg.AcceptPartial)
	assert.Equal(t, 30*time.Second, cfg.AttemptTimeout())
	assert.Equal(t, 24*time.Hour, cfg.TaskTTL())
}

func TestRequiredFieldsParsing(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"title,content", []string{"title", "content"}},
		{" title , content ,author", []string{"title", "content", "author"}},
		{"title,,", []string{"title"}},
		{"", nil},
	}
	for _, tt := range tests {
		cfg := &Config{RequiredField: tt.raw}
		assert.Equal(t, tt.want, cfg.RequiredFields())
	}
}
