package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/boddenberg/leadchat-go/internal/config"
	"github.com/boddenberg/leadchat-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadTriggerRules(t *testing.T) {
	path := writeFile(t, `
default:
  delay_seconds: 40
  enable_exit_intent: false
pages:
  pricing:
    delay_seconds: 5
    enable_exit_intent: true
`)

	rules, err := config.LoadTriggerRules(path)
	require.NoError(t, err)
	require.NotNil(t, rules.Default)
	assert.Equal(t, 40, rules.Default.DelaySeconds)
	assert.False(t, rules.Default.EnableExitIntent)
	assert.Equal(t, domain.TriggerRule{DelaySeconds: 5, EnableExitIntent: true}, rules.Pages[domain.PagePricing])
}

func TestLoadTriggerRules_RejectsNegativeDelay(t *testing.T) {
	path := writeFile(t, `
pages:
  blog:
    delay_seconds: -1
`)

	_, err := config.LoadTriggerRules(path)
	assert.Error(t, err)
}

func TestLoadTriggerRules_MissingFile(t *testing.T) {
	_, err := config.LoadTriggerRules(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := config.Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "sql", cfg.StoreBackend)
}
