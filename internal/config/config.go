package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sevigo/patch-warden/internal/logger"
)

// Config holds the application's configuration values.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     logger.Config     `mapstructure:"logging"`
	Database    DBConfig          `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Phabricator PhabricatorConfig `mapstructure:"phabricator"`
	GitHub      GitHubConfig      `mapstructure:"github"`
	Mapping     MappingConfig     `mapstructure:"mapping"`
	TreeStatus  TreeStatusConfig  `mapstructure:"treestatus"`
	Visibility  VisibilityConfig  `mapstructure:"visibility"`
	Try         TryConfig         `mapstructure:"try"`
	Issues      IssuesConfig      `mapstructure:"issues"`
	Sampling    SamplingConfig    `mapstructure:"sampling"`
	Hg          HgConfig          `mapstructure:"hg"`

	// ReposDir is the parent directory holding one clone per repository.
	ReposDir string `mapstructure:"repos_dir"`
	// RepositoriesFile points to the YAML list of managed repositories.
	RepositoriesFile string `mapstructure:"repositories_file"`

	Repositories []RepositoryConfig `mapstructure:"-"`
}

type ServerConfig struct {
	Port      string `mapstructure:"port"`
	QueueSize int    `mapstructure:"queue_size"`
}

type DBConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// RedisConfig enables the shared raw-file cache. An empty Addr keeps the
// cache in process memory.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type PhabricatorConfig struct {
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Publish bool   `mapstructure:"publish"`
	// SecureProjects are slugs of projects hiding a revision from the bot.
	SecureProjects []string `mapstructure:"secure_projects"`
	// UserBlacklist holds usernames whose revisions are never processed.
	UserBlacklist []string `mapstructure:"user_blacklist"`
	// PollInterval is how often queued builds are re-examined.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type GitHubConfig struct {
	Token          string `mapstructure:"token"`
	AppID          int64  `mapstructure:"app_id"`
	InstallationID int64  `mapstructure:"installation_id"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	Owner          string `mapstructure:"owner"`
	Repo           string `mapstructure:"repo"`
	// UnauthenticatedRPS throttles commit lookups made without credentials.
	UnauthenticatedRPS float64 `mapstructure:"unauthenticated_rps"`
}

type MappingConfig struct {
	URL  string `mapstructure:"url"`
	Repo string `mapstructure:"repo"`
}

type TreeStatusConfig struct {
	URL          string        `mapstructure:"url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
}

type VisibilityConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"`
	BaseSleep   time.Duration `mapstructure:"base_sleep"`
	BuildExpiry time.Duration `mapstructure:"build_expiry"`
}

type TryConfig struct {
	MaxRetries      int      `mapstructure:"max_retries"`
	BaseDelay       float64  `mapstructure:"base_delay"`
	TransientErrors []string `mapstructure:"transient_errors"`
	SkippableFiles  []string `mapstructure:"skippable_files"`
	TreeherderURL   string   `mapstructure:"treeherder_url"`
}

type IssuesConfig struct {
	// LocalClone is an optional git checkout used to read files for hashing.
	LocalClone     string `mapstructure:"local_clone"`
	ArtifactMarker string `mapstructure:"artifact_marker"`
	// Publication rules deciding whether a stored issue counts as in patch.
	PublishableChecks []string            `mapstructure:"publishable_checks"`
	AllowedPaths      []string            `mapstructure:"allowed_paths"`
	DisabledChecks    map[string][]string `mapstructure:"disabled_checks"`
}

// HgConfig locates the mercurial binary and its robustcheckout extension.
type HgConfig struct {
	Binary             string `mapstructure:"binary"`
	RobustCheckoutPath string `mapstructure:"robustcheckout_path"`
	// ShareBase holds the shared store of robust checkouts. Defaults to
	// <repos_dir>/shared.
	ShareBase string        `mapstructure:"share_base"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type SamplingConfig struct {
	TestSelectionRatio float64 `mapstructure:"test_selection_ratio"`
}

// DefaultTransientErrors lists VCS failure fragments that are worth retrying.
var DefaultTransientErrors = []string{
	"push failed on remote",
	"stream ended unexpectedly",
	"error: EOF occurred in violation of protocol",
}

// LoadConfig reads the configuration file named by PW_CONFIG (default
// config.yaml) together with PW_ prefixed environment variables.
func LoadConfig() (*Config, error) {
	path := os.Getenv("PW_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	return LoadConfigFile(path)
}

// LoadConfigFile loads and validates the configuration from a single file.
// A missing file is tolerated so that environment-only deployments work.
func LoadConfigFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("PW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrConfigParsing, err)
		}
		slog.Warn("config file not found, using defaults and environment", "path", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigParsing, err)
	}

	if cfg.RepositoriesFile != "" {
		repos, err := LoadRepositories(cfg.RepositoriesFile)
		if err != nil {
			return nil, err
		}
		cfg.Repositories = repos
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.queue_size", 100)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.username", "warden")
	v.SetDefault("database.database", "patch_warden")
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)
	v.SetDefault("database.password", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.ttl", 6*time.Hour)
	// Keys without a real default are still registered so that AutomaticEnv
	// can populate them during Unmarshal.
	v.SetDefault("phabricator.url", "")
	v.SetDefault("phabricator.token", "")
	v.SetDefault("github.token", "")
	v.SetDefault("issues.local_clone", "")
	v.SetDefault("repositories_file", "")
	v.SetDefault("phabricator.publish", true)
	v.SetDefault("phabricator.secure_projects", []string{"secure-revision"})
	v.SetDefault("phabricator.poll_interval", 10*time.Second)
	v.SetDefault("github.owner", "mozilla")
	v.SetDefault("github.repo", "gecko-dev")
	v.SetDefault("github.unauthenticated_rps", 1.0/60)
	v.SetDefault("mapping.url", "https://mapper.mozilla-releng.net")
	v.SetDefault("mapping.repo", "gecko-dev")
	v.SetDefault("treestatus.url", "https://treestatus.mozilla-releng.net/trees/try")
	v.SetDefault("treestatus.poll_interval", 10*time.Minute)
	v.SetDefault("treestatus.max_wait", 24*time.Hour)
	v.SetDefault("visibility.max_retries", 5)
	v.SetDefault("visibility.base_sleep", 10*time.Second)
	v.SetDefault("visibility.build_expiry", 24*time.Hour)
	v.SetDefault("try.max_retries", 4)
	v.SetDefault("try.base_delay", 2.0)
	v.SetDefault("try.transient_errors", DefaultTransientErrors)
	v.SetDefault("try.treeherder_url", "https://treeherder.mozilla.org")
	v.SetDefault("issues.artifact_marker", "obj-")
	v.SetDefault("issues.publishable_checks", []string{"*"})
	v.SetDefault("issues.allowed_paths", []string{"*"})
	v.SetDefault("issues.disabled_checks", map[string][]string{"flake8": {"Q000"}})
	v.SetDefault("sampling.test_selection_ratio", 0.0)
	v.SetDefault("repos_dir", "/tmp/patch-warden/repos")
	v.SetDefault("hg.binary", "hg")
	v.SetDefault("hg.robustcheckout_path", "")
	v.SetDefault("hg.share_base", "")
	v.SetDefault("hg.timeout", time.Hour)
}

// Validate rejects configurations that cannot drive the pipeline.
func (c *Config) Validate() error {
	if c.Phabricator.URL == "" {
		return fmt.Errorf("phabricator.url must be set")
	}
	if c.Phabricator.Token == "" {
		return fmt.Errorf("phabricator.token must be set")
	}
	if c.Visibility.MaxRetries <= 0 {
		return fmt.Errorf("visibility.max_retries must be positive, got %d", c.Visibility.MaxRetries)
	}
	if c.Try.MaxRetries < 0 {
		return fmt.Errorf("try.max_retries must not be negative, got %d", c.Try.MaxRetries)
	}
	if c.Sampling.TestSelectionRatio < 0 || c.Sampling.TestSelectionRatio > 1 {
		return fmt.Errorf("sampling.test_selection_ratio must be within [0, 1], got %v", c.Sampling.TestSelectionRatio)
	}
	for i := range c.Repositories {
		if err := c.Repositories[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Repository returns the configuration of a managed repository by name or
// review-host PHID.
func (c *Config) Repository(key string) (*RepositoryConfig, bool) {
	for i := range c.Repositories {
		if c.Repositories[i].Name == key || (c.Repositories[i].PHID != "" && c.Repositories[i].PHID == key) {
			return &c.Repositories[i], true
		}
	}
	return nil, false
}
