package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	APIConfig
	StorageConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type APIConfig interface {
	GetAPIBaseURL() string
	GetAPIPrefix() string
	GetRequestTimeout() time.Duration
	GetRootCompanyID() int64
	GetRefreshCoalescing() bool
	GetAPIRateLimit() float64
	GetAPIRateBurst() int
}

type StorageConfig interface {
	GetRedisURL() string
	GetStorageKey() string
	GetStorageTTL() time.Duration
}

type mainConfig struct {
	EnvVars
	API
	Storage
	Security
}

// New reads the console configuration from the environment.
func New() (Config, error) {
	c := mainConfig{}
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config New] failed to parse environment: %w", err)
	}
	return c, nil
}
