package config

import "time"

// Storage selects where per-browser token storage lives.
type Storage struct {
	RedisURL string        `env:"REDIS_URL"`
	Key      string        `env:"STORAGE_KEY"` // hex encoded 32 byte key, enables sealing of stored values
	TTL      time.Duration `env:"STORAGE_TTL" envDefault:"720h"`
}

var _ StorageConfig = Storage{}

func (s Storage) GetRedisURL() string {
	return s.RedisURL
}

func (s Storage) GetStorageKey() string {
	return s.Key
}

func (s Storage) GetStorageTTL() time.Duration {
	return s.TTL
}
