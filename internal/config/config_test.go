package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Phabricator: PhabricatorConfig{URL: "https://phabricator.test", Token: "api-token"},
		Visibility:  VisibilityConfig{MaxRetries: 5},
		Try:         TryConfig{MaxRetries: 4},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "Valid config",
			mutate:  func(_ *Config) {},
			wantErr: false,
		},
		{
			name:    "Missing review host URL",
			mutate:  func(c *Config) { c.Phabricator.URL = "" },
			wantErr: true,
		},
		{
			name:    "Missing review host token",
			mutate:  func(c *Config) { c.Phabricator.Token = "" },
			wantErr: true,
		},
		{
			name:    "Non-positive visibility retries",
			mutate:  func(c *Config) { c.Visibility.MaxRetries = 0 },
			wantErr: true,
		},
		{
			name:    "Sampling ratio above one",
			mutate:  func(c *Config) { c.Sampling.TestSelectionRatio = 1.5 },
			wantErr: true,
		},
		{
			name: "Invalid checkout mode",
			mutate: func(c *Config) {
				c.Repositories = []RepositoryConfig{{Name: "central", URL: "https://hg.test/central", Checkout: "shallow"}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()

	reposPath := filepath.Join(dir, "repositories.yaml")
	require.NoError(t, os.WriteFile(reposPath, []byte(`
repositories:
  - name: mozilla-central
    url: https://hg.mozilla.org/mozilla-unified
    try_url: ssh://hg.mozilla.org/try
    checkout: batch
    default_revision: central
`), 0o600))

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
phabricator:
  url: https://phabricator.test
  token: api-xyz
  secure_projects: [secure-revision]
visibility:
  base_sleep: 30s
repositories_file: `+reposPath+`
`), 0o600))

	cfg, err := LoadConfigFile(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "https://phabricator.test", cfg.Phabricator.URL)
	assert.Equal(t, []string{"secure-revision"}, cfg.Phabricator.SecureProjects)
	assert.Equal(t, 30*time.Second, cfg.Visibility.BaseSleep)
	assert.Equal(t, 5, cfg.Visibility.MaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.Visibility.BuildExpiry)
	assert.Equal(t, 4, cfg.Try.MaxRetries)
	assert.Equal(t, DefaultTransientErrors, cfg.Try.TransientErrors)
	assert.Equal(t, 100, cfg.Server.QueueSize)
	assert.Equal(t, []string{"*"}, cfg.Issues.PublishableChecks)
	assert.Equal(t, []string{"Q000"}, cfg.Issues.DisabledChecks["flake8"])

	require.Len(t, cfg.Repositories, 1)
	repo, ok := cfg.Repository("mozilla-central")
	require.True(t, ok)
	assert.Equal(t, "try", repo.TryName)
	assert.Equal(t, CheckoutBatch, repo.Checkout)
	assert.Equal(t, 10000, repo.BatchSize)
	assert.Equal(t, "central", repo.DefaultRevision)
}

func TestLoadRepositories_NotFound(t *testing.T) {
	_, err := LoadRepositories(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestTryName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "ssh://hg.mozilla.org/try", want: "try"},
		{url: "https://hg.mozilla.org/projects/nss-try/", want: "nss-try"},
		{url: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, TryName(tt.url))
		})
	}
}
