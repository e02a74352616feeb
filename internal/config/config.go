package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/OpenGG/rc4me/internal/rc/paths"
)

const (
	// AppName names the config directory and the environment prefix.
	AppName = "rc4me"
	// FileName is the config file name without extension.
	FileName = "config"
	// FileExt is the config file format.
	FileExt = "yaml"

	defaultRemoteBaseURL = "https://github.com"
	defaultLogLevel      = "warn"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Config holds the effective settings after defaults, the config file,
// RC4ME_* environment variables and flags are merged, in that order.
type Config struct {
	Home          string `mapstructure:"home" yaml:"home"`
	Dest          string `mapstructure:"dest" yaml:"dest"`
	RemoteBaseURL string `mapstructure:"remote_base_url" yaml:"remote_base_url"`
	Branch        string `mapstructure:"branch" yaml:"branch"`
	LogLevel      string `mapstructure:"log_level" yaml:"log_level"`
	AssumeYes     bool   `mapstructure:"assume_yes" yaml:"assume_yes"`
}

// LoadOptions control where configuration is read from.
type LoadOptions struct {
	// ConfigFile is used exclusively when set and must exist.
	ConfigFile string
	// Flags maps config keys to command-line flags that override them
	// when changed.
	Flags map[string]*pflag.Flag
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		Home:          paths.DefaultRoot(xdg.Home),
		Dest:          xdg.Home,
		RemoteBaseURL: defaultRemoteBaseURL,
		LogLevel:      defaultLogLevel,
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/rc4me/config.yaml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, FileName+"."+FileExt)
}

// Load merges all configuration sources. It returns the config and the path
// of the file that was read, empty when none was.
func Load(opts LoadOptions) (*Config, string, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("home", defaults.Home)
	v.SetDefault("dest", defaults.Dest)
	v.SetDefault("remote_base_url", defaults.RemoteBaseURL)
	v.SetDefault("branch", defaults.Branch)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("assume_yes", defaults.AssumeYes)

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.AutomaticEnv()

	for key, flag := range opts.Flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, "", fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
		}
	}

	path := opts.ConfigFile
	if path == "" {
		path = DefaultPath()
		if !fileExists(path) {
			path = ""
		}
	} else if !fileExists(path) {
		return nil, "", fmt.Errorf("config file not found: %s", path)
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(FileExt)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Home = expandHome(cfg.Home)
	cfg.Dest = expandHome(cfg.Dest)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, path, nil
}

// Validate checks values the loaders cannot.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Home) == "" {
		return errors.New("home cannot be empty")
	}
	if strings.TrimSpace(c.Dest) == "" {
		return errors.New("dest cannot be empty")
	}
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			return nil
		}
	}
	return fmt.Errorf("invalid log_level %q: must be one of %s", c.LogLevel, strings.Join(validLogLevels, ", "))
}

// YAML renders the config in the file format it is read from.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func expandHome(path string) string {
	if path == "~" {
		return xdg.Home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(xdg.Home, path[2:])
	}
	return path
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
