package config

import (
	"os"
	"strings"
	"time"
)

const (
	appNameVar  = "APP_NAME"
	baseURLVar  = "BASE_URL"
	envVar      = "ENV"
	logLevelVar = "LOG_LEVEL"
)

type EnvVars struct {
	file *FileConfig
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return GetEnv(appNameVar, fileString(e.file, func(f *FileConfig) *string { return f.AppName }, "PaperLink"))
}

// GetBaseURL returns the origin every relative API path is resolved against (e.g., "https://paperlink.example.com")
func (e EnvVars) GetBaseURL() string {
	return strings.TrimSuffix(GetEnv(baseURLVar, fileString(e.file, func(f *FileConfig) *string { return f.BaseURL }, "http://localhost:8080")), "/")
}

func (e EnvVars) GetEnv() string {
	return GetEnv(envVar, fileString(e.file, func(f *FileConfig) *string { return f.Env }, "DEV"))
}

func (e EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, fileString(e.file, func(f *FileConfig) *string { return f.LogLevel }, "info"))
}

func GetEnv(envVar, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(envVar))
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvDuration reads a positive duration such as "10s"; invalid values use the default.
func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(envVar))
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func fileString(fc *FileConfig, get func(*FileConfig) *string, defaultValue string) string {
	if fc == nil {
		return defaultValue
	}
	if v := deref(get(fc)); v != "" {
		return v
	}
	return defaultValue
}

func fileDuration(fc *FileConfig, get func(*FileConfig) *time.Duration, defaultValue time.Duration) time.Duration {
	if fc == nil {
		return defaultValue
	}
	if v := deref(get(fc)); v > 0 {
		return v
	}
	return defaultValue
}

// deref returns the zero value for an unset file key.
func deref[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}
