// Package config loads CLI settings from viper into typed values.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Settings are the resolved runtime settings for one CLI invocation.
type Settings struct {
	DatabasePath    string
	ArchiveBaseURL  string
	OracleAPIKey    string
	OracleBaseURL   string
	OracleModel     string
	SeedCommunities []string
	ExcludeKeywords []string
	AppIDs          []string
}

// SetDefaults registers the default configuration values.
func SetDefaults() {
	viper.SetDefault("database.path", "~/.local/share/pvre/pvre.db")
	viper.SetDefault("archive.base_url", "https://arctic-shift.photon-reddit.com/api")
}

// FromViper resolves the current viper state into Settings, expanding the
// database path.
func FromViper() Settings {
	return Settings{
		DatabasePath:    ExpandPath(viper.GetString("database.path")),
		ArchiveBaseURL:  viper.GetString("archive.base_url"),
		OracleAPIKey:    viper.GetString("oracle.api_key"),
		OracleBaseURL:   viper.GetString("oracle.base_url"),
		OracleModel:     viper.GetString("oracle.model"),
		SeedCommunities: viper.GetStringSlice("run.seed_communities"),
		ExcludeKeywords: viper.GetStringSlice("run.exclude_keywords"),
		AppIDs:          viper.GetStringSlice("run.app_ids"),
	}
}

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}
