package config

import (
	"fmt"
	"os"
	"strings"
)

type EnvVars struct {
	Port     string `env:"PORT" envDefault:"8080"`
	AppName  string `env:"APP_NAME" envDefault:"Auth Console"`
	Env      string `env:"ENV" envDefault:"DEV"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port == "" {
		port = "8080"
	}
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return e.Env
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
