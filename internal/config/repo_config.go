package config

import (
	"errors"
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigParsing  = errors.New("config parsing failed")
)

// Checkout strategies supported for the initial clone.
const (
	CheckoutPlain  = "plain"
	CheckoutBatch  = "batch"
	CheckoutRobust = "robust"
)

// RepositoryConfig describes one managed remote and its try destination.
type RepositoryConfig struct {
	Name              string `yaml:"name"`
	PHID              string `yaml:"phid"`
	URL               string `yaml:"url"`
	TryURL            string `yaml:"try_url"`
	TryName           string `yaml:"try_name"`
	Checkout          string `yaml:"checkout"`
	BatchSize         int    `yaml:"batch_size"`
	DefaultRevision   string `yaml:"default_revision"`
	UseLatestRevision bool   `yaml:"use_latest_revision"`
	SSHUser           string `yaml:"ssh_user"`
	SSHKeyPath        string `yaml:"ssh_key_path"`
}

type repositoriesFile struct {
	Repositories []RepositoryConfig `yaml:"repositories"`
}

// LoadRepositories loads and parses the repositories YAML file.
func LoadRepositories(filePath string) ([]RepositoryConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, filePath)
		}
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	var file repositoriesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigParsing, err)
	}

	for i := range file.Repositories {
		file.Repositories[i].applyDefaults()
	}
	return file.Repositories, nil
}

func (r *RepositoryConfig) applyDefaults() {
	if r.Checkout == "" {
		r.Checkout = CheckoutRobust
	}
	if r.BatchSize <= 0 {
		r.BatchSize = 10000
	}
	if r.DefaultRevision == "" {
		r.DefaultRevision = "tip"
	}
	if r.TryName == "" {
		r.TryName = TryName(r.TryURL)
	}
}

// Validate checks a single repository entry.
func (r *RepositoryConfig) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("repository name must be set")
	}
	if r.URL == "" {
		return fmt.Errorf("repository %s: url must be set", r.Name)
	}
	switch r.Checkout {
	case CheckoutPlain, CheckoutBatch, CheckoutRobust:
	default:
		return fmt.Errorf("repository %s: invalid checkout mode %q", r.Name, r.Checkout)
	}
	return nil
}

// TryName derives the treeherder repository name from a try push URL,
// which is its last path segment.
func TryName(tryURL string) string {
	if tryURL == "" {
		return ""
	}
	return path.Base(path.Clean(tryURL))
}
