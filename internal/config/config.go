// Package config holds pp's viper-backed configuration.
//
// Precedence, highest first: command flags (applied by cmd/pp through Set),
// PP_* environment variables, <workspace>/.pp/config.yaml, the user config
// at $XDG_CONFIG_HOME/pp/config.yaml, then the defaults below.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DirName is the per-workspace state directory.
const DirName = ".pp"

// FileName is the config file inside DirName.
const FileName = "config.yaml"

var v *viper.Viper

// Defaults for every known key. Keys not listed here are still readable
// from files and the environment but are not advertised by `pp config list`.
var defaults = map[string]interface{}{
	"json":                      false,
	"verbose":                   false,
	"quiet":                     false,
	"solution-name":             "PlatformPlatform.slnx",
	"apphost.project":           "AppHost",
	"app.port":                  9000,
	"dashboard.port":            9001,
	"run.startup-timeout":       5 * time.Minute,
	"run.open-browser":          true,
	"e2e.browser":               "chromium",
	"e2e.base-url":              "https://localhost:9000",
	"e2e.base-branch":           "origin/main",
	"ai-rules.source":           ".cursor/rules",
	"translate.provider":        "ollama",
	"translate.model":           "llama3.1:8b",
	"translate.anthropic-model": "claude-sonnet-4-5",
	"translate.concurrency":     4,
	"translate.source-locale":   "en-US",
	"devcert.path":              "",
	"update-packages.exclude":   []string{},
	"deploy.github-environment": "",
	"deploy.azure-location":     "westeurope",
}

// Initialize builds the viper singleton, discovering the workspace config
// from the working directory. Call again after changing directory to reload.
func Initialize() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	return InitializeAt(cwd)
}

// InitializeAt is Initialize with an explicit start directory.
func InitializeAt(startDir string) error {
	v = viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if userPath := userConfigPath(); userPath != "" {
		if _, err := os.Stat(userPath); err == nil {
			v.SetConfigFile(userPath)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read %s: %w", userPath, err)
			}
		}
	}

	if projectPath := FindProjectConfig(startDir); projectPath != "" {
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("failed to read %s: %w", projectPath, err)
		}
	}

	return nil
}

// FindProjectConfig walks up from startDir looking for .pp/config.yaml.
// Returns "" when none exists.
func FindProjectConfig(startDir string) string {
	for dir := startDir; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, DirName, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		if filepath.Dir(dir) == dir {
			return ""
		}
	}
}

func userConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pp", FileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "pp", FileName)
}

func ensure() {
	if v == nil {
		_ = Initialize()
	}
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	ensure()
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	ensure()
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	ensure()
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	ensure()
	return v.GetDuration(key)
}

// GetStringSlice retrieves a string slice configuration value.
// Comma-separated env values are split.
func GetStringSlice(key string) []string {
	ensure()
	raw := v.GetStringSlice(key)
	var out []string
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Set overrides a value for the rest of the process (flags use this).
func Set(key string, value interface{}) {
	ensure()
	v.Set(key, value)
}

// IsSet reports whether key has a value from any source other than defaults.
func IsSet(key string) bool {
	ensure()
	return v.InConfig(key) || os.Getenv(EnvName(key)) != ""
}

// ConfigFileUsed returns the last config file merged, or "".
func ConfigFileUsed() string {
	ensure()
	return v.ConfigFileUsed()
}

// AllSettings returns the effective configuration as a nested map.
func AllSettings() map[string]interface{} {
	ensure()
	return v.AllSettings()
}

// KnownKeys returns the keys that have defaults, sorted.
func KnownKeys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return "PP_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}
