// Package config loads exastash's config.toml, the same way onedriver's
// cmd/common package loads its YAML config: read the file, unmarshal, then
// merge in defaults for anything left zero.
package config

import (
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

// PathRootsValue maps a local directory to the exastash dir id that mirrors
// it, plus the validators newly created dirents under it must pass.
type PathRootsValue struct {
	DirID                 int64    `toml:"dir_id"`
	NewDirentRequirements []string `toml:"new_dirent_requirements"`
}

// Config is exastash's top-level configuration, loaded from config.toml
// with the EXASTASH_POSTGRESQL_URI environment variable taking precedence
// over the file's database_url for secrets that shouldn't live on disk.
type Config struct {
	DatabaseURL    string                    `toml:"database_url"`
	ListenAddr     string                    `toml:"listen_addr"`
	GdrivePartSize int64                     `toml:"gdrive_part_size"`
	PathRoots      map[string]PathRootsValue `toml:"path_roots"`
}

// DefaultConfigPath returns the default config.toml location for exastash,
// under the user's config directory.
func DefaultConfigPath() string {
	confDir, err := os.UserConfigDir()
	if err != nil {
		log.Error().Err(err).Msg("could not determine configuration directory")
	}
	return filepath.Join(confDir, "exastash/config.toml")
}

const defaultGdrivePartSize = 4 * 1024 * 1024 * 1024 // 4 GiB

// Load reads and parses path, merging in defaults for any field the file
// left unset. A missing or unparseable file logs a warning and falls back
// to defaults entirely, the same as onedriver's LoadConfig; the
// EXASTASH_POSTGRESQL_URI override applies in either case.
func Load(path string) *Config {
	defaults := Config{
		ListenAddr:     "0.0.0.0:8080",
		GdrivePartSize: defaultGdrivePartSize,
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		log.Warn().
			Err(err).
			Str("path", path).
			Msg("configuration file not found or unreadable, using defaults")
		cfg = &defaults
	} else if err := mergo.Merge(cfg, defaults); err != nil {
		log.Error().
			Err(err).
			Str("path", path).
			Msg("could not merge configuration file with defaults, using defaults only")
	}

	if envURI := os.Getenv("EXASTASH_POSTGRESQL_URI"); envURI != "" {
		cfg.DatabaseURL = envURI
	}

	return cfg
}
