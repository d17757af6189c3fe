package api

// Endpoint path constants
// Client and reference backend both use these so the two never drift apart
const (
	// Session
	EndpointLogin   = "/api/v1/auth/login"
	EndpointRefresh = "/api/v1/auth/refresh"
	EndpointLogout  = "/api/v1/auth/logout"

	// Identity
	EndpointMe       = "/api/v1/auth/me"
	EndpointHasAdmin = "/api/v1/auth/hasAdmin"
	EndpointTest     = "/api/v1/auth/test"

	// Account (reserved, served by local stubs for now)
	EndpointUsername = "/api/v1/auth/username"
	EndpointPassword = "/api/v1/auth/password"
)

// Refresh cookie
const (
	RefreshCookieName = "refresh"
)

// LegacyRefreshCookiePaths lists every path a refresh cookie has been issued
// on. Logout expires the cookie on each of them.
var LegacyRefreshCookiePaths = []string{
	"/",
	EndpointRefresh,
	"/api/v1/auth",
	"/api/v1",
}
