package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	loginRouteVar       = "LOGIN_ROUTE"
	refreshTimeoutVar   = "REFRESH_TIMEOUT"
	requestTimeoutVar   = "REQUEST_TIMEOUT"
	accountStubDelayVar = "ACCOUNT_STUB_DELAY"

	userCachePathVar  = "USER_CACHE_PATH"
	userCacheRedisVar = "USER_CACHE_REDIS_URL"
	userCacheKeyVar   = "USER_CACHE_KEY"
)

type Session struct {
	file *FileConfig
}

var _ SessionConfig = Session{}

// GetLoginRoute is the public route every unrecoverable session failure lands on
func (s Session) GetLoginRoute() string {
	return GetEnv(loginRouteVar, fileString(s.file, func(f *FileConfig) *string { return f.LoginRoute }, "/auth"))
}

// GetRefreshTimeout bounds the shared refresh call, independent of any single caller's context
func (s Session) GetRefreshTimeout() time.Duration {
	return GetEnvDuration(refreshTimeoutVar, fileDuration(s.file, func(f *FileConfig) *time.Duration { return f.RefreshTimeout }, 10*time.Second))
}

func (s Session) GetRequestTimeout() time.Duration {
	return GetEnvDuration(requestTimeoutVar, fileDuration(s.file, func(f *FileConfig) *time.Duration { return f.RequestTimeout }, 30*time.Second))
}

// GetAccountStubDelay is the simulated latency of the username/password stubs
func (s Session) GetAccountStubDelay() time.Duration {
	return GetEnvDuration(accountStubDelayVar, fileDuration(s.file, func(f *FileConfig) *time.Duration { return f.AccountStubDelay }, 350*time.Millisecond))
}

type Storage struct {
	file *FileConfig
}

var _ StorageConfig = Storage{}

func (s Storage) GetUserCachePath() string {
	return GetEnv(userCachePathVar, fileString(s.file, func(f *FileConfig) *string { return f.UserCachePath }, defaultUserCachePath()))
}

// GetUserCacheRedisURL selects the redis user cache when non-empty
func (s Storage) GetUserCacheRedisURL() string {
	return GetEnv(userCacheRedisVar, fileString(s.file, func(f *FileConfig) *string { return f.UserCacheRedis }, ""))
}

func (s Storage) GetUserCacheKey() string {
	return GetEnv(userCacheKeyVar, fileString(s.file, func(f *FileConfig) *string { return f.UserCacheKey }, "paperlink.username"))
}

func defaultUserCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "paperlink", "session.json")
	}
	return filepath.Join(home, ".config", "paperlink", "session.json")
}
