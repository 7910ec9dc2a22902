package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version information - set by GoReleaser during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// GetVersionInfo returns a formatted version string
func GetVersionInfo() string {
	return fmt.Sprintf("authsync version %s, commit %s, built at %s", version, commit, date)
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Provider ProviderConfig `mapstructure:"provider"`
	Client   ClientConfig   `mapstructure:"client"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ProviderMode selects which auth provider backend to run against
type ProviderMode string

const (
	ProviderModeHTTP   ProviderMode = "http"
	ProviderModeStatic ProviderMode = "static"
)

// ProviderConfig configures the remote auth provider client
type ProviderConfig struct {
	Mode ProviderMode `mapstructure:"mode"`

	// HTTP provider settings
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`

	// RefreshMargin is how long before token expiry the background
	// refresh fires. Zero means the default margin.
	RefreshMargin time.Duration `mapstructure:"refresh_margin"`

	// Static provider settings
	UsersFile string        `mapstructure:"users_file"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type ServerConfig struct {
	Host    string        `mapstructure:"host"`
	Port    int           `mapstructure:"port"`
	Timeout time.Duration `mapstructure:"timeout"`
	Name    string        `mapstructure:"name"`
	Version string        `mapstructure:"version"`
}

// ClientConfig configures the RPC client used by the CLI
type ClientConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level             string `mapstructure:"level"`
	Format            string `mapstructure:"format"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
	OutputPath        string `mapstructure:"output_path"`
	DisableConsole    bool   `mapstructure:"disable_console"`
}

// InitFlags initializes command line flags (without parsing)
func InitFlags() {
	pflag.String("provider.mode", string(ProviderModeHTTP), "Auth provider mode (http|static)")
	pflag.String("provider.base_url", "", "Base URL of the remote auth provider")
	pflag.String("client.base_url", "", "Base URL of the RPC server")
	// Note: no pflag.Parse() here as it's called in main.go
}

func Load() (*Config, error) {
	viper.Reset() // Ensure clean state

	viper.SetEnvPrefix("AUTHSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		return nil, err
	}

	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/authsync")

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; defaults + env + flags are enough
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 4000)
	viper.SetDefault("server.timeout", 30*time.Second)
	viper.SetDefault("server.name", "authsync")
	viper.SetDefault("server.version", version)

	viper.SetDefault("provider.mode", string(ProviderModeHTTP))
	viper.SetDefault("provider.timeout", 10*time.Second)
	viper.SetDefault("provider.token_ttl", time.Hour)

	viper.SetDefault("client.timeout", 30*time.Second)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
}

func validate(cfg *Config) error {
	switch cfg.Provider.Mode {
	case ProviderModeHTTP:
		if cfg.Provider.BaseURL == "" {
			return fmt.Errorf("provider.base_url is required in http mode, set it in the config or pass --provider.base_url or AUTHSYNC_PROVIDER_BASE_URL")
		}
	case ProviderModeStatic:
		// users_file is optional; an empty static provider accepts no one
	default:
		return fmt.Errorf("unsupported provider mode: %s", cfg.Provider.Mode)
	}
	return nil
}
