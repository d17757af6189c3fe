package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileVar names the environment variable holding an optional YAML config file.
const ConfigFileVar = "AUTH_CLIENT_CONFIG"

type Config interface {
	EnvConfig
	SessionConfig
	StorageConfig
	ServerConfig
	CorsConfig
}

type EnvConfig interface {
	GetAppName() string
	GetBaseURL() string
	GetEnv() string
	GetLogLevel() string
}

type SessionConfig interface {
	GetLoginRoute() string
	GetRefreshTimeout() time.Duration
	GetRequestTimeout() time.Duration
	GetAccountStubDelay() time.Duration
}

type StorageConfig interface {
	GetUserCachePath() string
	GetUserCacheRedisURL() string
	GetUserCacheKey() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

// FileConfig mirrors the keys accepted in the YAML config file.
// Unset keys fall through to the defaults.
type FileConfig struct {
	AppName          *string        `yaml:"app_name"`
	BaseURL          *string        `yaml:"base_url"`
	Env              *string        `yaml:"env"`
	LogLevel         *string        `yaml:"log_level"`
	LoginRoute       *string        `yaml:"login_route"`
	RefreshTimeout   *time.Duration `yaml:"refresh_timeout"`
	RequestTimeout   *time.Duration `yaml:"request_timeout"`
	AccountStubDelay *time.Duration `yaml:"account_stub_delay"`
	UserCachePath    *string        `yaml:"user_cache_path"`
	UserCacheRedis   *string        `yaml:"user_cache_redis_url"`
	UserCacheKey     *string        `yaml:"user_cache_key"`
	Port             *string        `yaml:"port"`
	AllowedOrigins   []string       `yaml:"allowed_origins"`
}

type mainConfig struct {
	EnvVars
	Session
	Storage
	Server
	Cors
}

// New returns a config built from defaults and environment variables.
func New() Config {
	return newMainConfig(nil)
}

// Load layers the YAML file at path between the defaults and the environment.
// An empty path falls back to the AUTH_CLIENT_CONFIG environment variable; if
// that is empty too, Load behaves like New.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(ConfigFileVar)
	}
	if path == "" {
		return New(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[config Load] read %s: %w", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("[config Load] parse %s: %w", path, err)
	}
	return newMainConfig(&fc), nil
}

func newMainConfig(fc *FileConfig) mainConfig {
	return mainConfig{
		EnvVars: EnvVars{file: fc},
		Session: Session{file: fc},
		Storage: Storage{file: fc},
		Server:  Server{file: fc},
		Cors:    Cors{file: fc},
	}
}
