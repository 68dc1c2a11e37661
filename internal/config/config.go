// Package config loads the main configuration file:
// primary architecture, per-repository source/distribution/components/
// keys, and the ambient tuning knobs (fetcher parallelism, retry
// ceiling, effector binary) a complete implementation needs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// RepoConfig describes one repository to fetch metadata from.
type RepoConfig struct {
	Source       string   `toml:"source"`
	Distribution string   `toml:"distribution"`
	Components   []string `toml:"components"`
	Keys         []string `toml:"keys"`

	// MirrorList, when set, treats Source not as the repository's own
	// base URL but as the address of a mirror list: a plain text
	// document with one candidate base URL per line, tried in the
	// order listed. Blank lines and lines starting with "#" are
	// skipped.
	MirrorList bool `toml:"mirrorlist"`
}

// Config is the parsed contents of config.toml.
type Config struct {
	Arch  string                `toml:"arch"`
	Repos map[string]RepoConfig `toml:"repo"`

	ConfigRoot string `toml:"-"`
	CacheRoot  string `toml:"cache_root"`
	KeysDir    string `toml:"-"`

	FetchParallelismPerHost int           `toml:"fetch_parallelism_per_host"`
	FetchRetryCeiling       int           `toml:"fetch_retry_ceiling"`
	FetchRetryMaxInterval   time.Duration `toml:"fetch_retry_max_interval"`

	EffectorBinary string `toml:"effector_binary"`

	// DpkgStatusPath is the Installed-State Reader's source file.
	DpkgStatusPath string `toml:"dpkg_status_path"`
}

// defaults applies the optional-key defaults the configuration loader
// guarantees when config.toml omits them.
func defaults() Config {
	return Config{
		CacheRoot:               "/var/cache/oma",
		FetchParallelismPerHost: 4,
		FetchRetryCeiling:       5,
		FetchRetryMaxInterval:   30 * time.Second,
		EffectorBinary:          "dpkg",
		DpkgStatusPath:          "/var/lib/dpkg/status",
	}
}

// Load reads <configRoot>/config.toml and fills in ConfigRoot/KeysDir.
func Load(configRoot string) (*Config, error) {
	path := filepath.Join(configRoot, "config.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading configuration file %s", path)
	}
	return Parse(data, configRoot)
}

// Parse decodes TOML bytes into a Config rooted at configRoot, applying
// defaults and validating the required keys (arch, at least one repo).
func Parse(data []byte, configRoot string) (*Config, error) {
	cfg := defaults()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parsing configuration file")
	}
	cfg.ConfigRoot = configRoot
	cfg.KeysDir = filepath.Join(configRoot, "keys")

	if cfg.Arch == "" {
		return nil, errors.New("configuration must set arch")
	}
	if len(cfg.Repos) == 0 {
		return nil, errors.New("configuration must declare at least one repo.<name>")
	}
	for name, r := range cfg.Repos {
		if r.Source == "" {
			return nil, fmt.Errorf("repo.%s.source is required", name)
		}
		if r.Distribution == "" {
			return nil, fmt.Errorf("repo.%s.distribution is required", name)
		}
		if len(r.Components) == 0 {
			return nil, fmt.Errorf("repo.%s.components must list at least one component", name)
		}
	}
	return &cfg, nil
}

// Encode renders the configuration back to TOML, primarily for the
// round-trip testable property (load -> encode -> load yields an
// equivalent Config).
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

// UserBlueprintPath and OverlayDir implement the on-disk layout.
func (c *Config) UserBlueprintPath() string { return filepath.Join(c.ConfigRoot, "user.blueprint") }
func (c *Config) OverlayDir() string        { return filepath.Join(c.ConfigRoot, "blueprint.d") }

// RepoCacheDir returns <cache_root>/<repo> for a named repository.
func (c *Config) RepoCacheDir(repo string) string { return filepath.Join(c.CacheRoot, repo) }
