package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	portEnvVar         = "PORT"
	jwtSecretVar       = "JWT_SECRET"
	accessTokenTTLVar  = "ACCESS_TOKEN_TTL"
	refreshTokenTTLVar = "REFRESH_TOKEN_TTL"
)

// ServerConfig configures the reference backend used for local development and tests.
type ServerConfig interface {
	GetPort() string
	GetJWTSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
}

type Server struct {
	file *FileConfig
}

var _ ServerConfig = Server{}

func (s Server) GetPort() string {
	port := GetEnv(portEnvVar, fileString(s.file, func(f *FileConfig) *string { return f.Port }, "8080"))
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (Server) GetJWTSecret() string {
	return GetEnv(jwtSecretVar, "dev-secret-key-change-in-production")
}

func (Server) GetAccessTokenExpiry() time.Duration {
	return GetEnvDuration(accessTokenTTLVar, 15*time.Minute)
}

func (Server) GetRefreshTokenExpiry() time.Duration {
	return GetEnvDuration(refreshTokenTTLVar, 30*24*time.Hour) // 30 days
}
