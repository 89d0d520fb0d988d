// Package config resolves pickboard settings from defaults, an optional
// YAML file, PICKBOARD_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/pickboard/internal/animate"
	"github.com/roach88/pickboard/internal/suppress"
)

// EnvPrefix prefixes every environment override, e.g.
// PICKBOARD_SUPPRESSION_WINDOW=3s.
const EnvPrefix = "PICKBOARD"

// Keys shared by the config file, the environment and flags.
const (
	KeySuppressionWindow = "suppression_window"
	KeyFadeDuration      = "fade_duration"
	KeyAddr              = "addr"
	KeyDB                = "db"
	KeyList              = "list"
	KeyServer            = "server"
)

// Config holds application configuration.
type Config struct {
	// SuppressionWindow is how long a local action absorbs its push echo.
	SuppressionWindow time.Duration `mapstructure:"suppression_window"`

	// FadeDuration is the length of each animation phase.
	FadeDuration time.Duration `mapstructure:"fade_duration"`

	// Addr is the reference server's listen address.
	Addr string `mapstructure:"addr"`

	// DB is the reference server's SQLite path.
	DB string `mapstructure:"db"`

	// List is the list a viewer watches.
	List string `mapstructure:"list"`

	// Server is the base URL a viewer connects to.
	Server string `mapstructure:"server"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		SuppressionWindow: suppress.DefaultWindow,
		FadeDuration:      animate.DefaultFade,
		Addr:              "localhost:8080",
		DB:                "pickboard.db",
		List:              "default",
		Server:            "http://localhost:8080",
	}
}

// Load resolves the configuration. path names an explicit config file and
// must exist when set; otherwise PICKBOARD_CONFIG is consulted and then
// $HOME/.config/pickboard/config.yaml, which may be absent. Flags in fs
// whose names match a key override everything else when set.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault(KeySuppressionWindow, d.SuppressionWindow)
	v.SetDefault(KeyFadeDuration, d.FadeDuration)
	v.SetDefault(KeyAddr, d.Addr)
	v.SetDefault(KeyDB, d.DB)
	v.SetDefault(KeyList, d.List)
	v.SetDefault(KeyServer, d.Server)

	v.SetConfigType("yaml")
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	explicit := path != ""
	if explicit {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "pickboard"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for _, key := range []string{KeySuppressionWindow, KeyFadeDuration, KeyAddr, KeyDB, KeyList, KeyServer} {
			f := fs.Lookup(strings.ReplaceAll(key, "_", "-"))
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", f.Name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if c.SuppressionWindow <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeySuppressionWindow, c.SuppressionWindow)
	}
	if c.FadeDuration < 0 {
		return fmt.Errorf("%s must not be negative, got %s", KeyFadeDuration, c.FadeDuration)
	}
	return nil
}
