package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jrsteele09/go-auth-console/apiclient"
	"github.com/jrsteele09/go-auth-console/tokenstore"
)

const appName = "consolectl"

// Config is the command line console configuration. Values come from flags, then
// CONSOLECTL_* environment variables, then the config file.
type Config struct {
	API           APIConfig `mapstructure:"api"`
	TokenFile     string    `mapstructure:"token_file"`
	StorageKey    string    `mapstructure:"storage_key"`
	RootCompanyID int64     `mapstructure:"root_company_id"`
	NoColor       bool      `mapstructure:"no_color"`
	Verbose       bool      `mapstructure:"verbose"`
}

// APIConfig is the backend the console talks to.
type APIConfig struct {
	URL     string        `mapstructure:"url"`
	Prefix  string        `mapstructure:"prefix"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.url", "http://localhost:8000")
	v.SetDefault("api.prefix", apiclient.DefaultPrefix)
	v.SetDefault("api.timeout", apiclient.DefaultTimeout)
	v.SetDefault("root_company_id", 1)
}

// LoadConfig reads the configuration. An explicit cfgFile must exist; the default
// locations are optional.
func LoadConfig(v *viper.Viper, cmd *cobra.Command, cfgFile string) (*Config, error) {
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("." + appName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/" + appName)
	}

	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"api.url":     "api-url",
		"api.prefix":  "api-prefix",
		"api.timeout": "timeout",
		"token_file":  "token-file",
		"no_color":    "no-color",
		"verbose":     "verbose",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.API.URL == "" {
		return nil, errors.New("api.url is required")
	}
	if cfg.TokenFile == "" {
		path, err := tokenstore.DefaultFilePath(appName)
		if err != nil {
			return nil, err
		}
		cfg.TokenFile = path
	}
	return cfg, nil
}
