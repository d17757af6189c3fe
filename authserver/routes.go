package authserver

import "github.com/jrsteele09/go-auth-client/api"

func (s *Server) initRoutes() {
	// Session
	s.RegisterRouteHandler("POST "+api.EndpointLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+api.EndpointRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+api.EndpointLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	// Identity
	s.RegisterRouteHandler("GET "+api.EndpointMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(s.RequireAuth())...))
	s.RegisterRouteHandler("GET "+api.EndpointHasAdmin, ChainMiddleware(s.HasAdminHandler(), s.APIMiddleware(s.RequireAuth(), s.RequireAdmin())...))
	s.RegisterRouteHandler("GET "+api.EndpointTest, ChainMiddleware(s.PingHandler(), s.APIMiddleware()...))

	// Preflight for every API path
	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(s.PingHandler(), s.APIMiddleware()...))
}
