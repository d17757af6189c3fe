// Package authserver is the reference backend of the session contract. It
// issues access tokens in JSON and refresh tokens in an HttpOnly cookie, and
// is used by the dev server and by the integration tests of the client.
package authserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-client/authserver/accounts"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/rs/zerolog"
)

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	accounts accounts.Repo
	tokens   *TokenIssuer
	logger   zerolog.Logger
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSigner replaces the HMAC signer built from the configured JWT secret.
func WithSigner(signer Signer) Option {
	return func(s *Server) {
		s.tokens = NewTokenIssuer(signer, s.config.GetAccessTokenExpiry(), s.config.GetRefreshTokenExpiry())
	}
}

func New(cfg config.Config, repo accounts.Repo, opts ...Option) (*Server, error) {
	if repo == nil {
		return nil, fmt.Errorf("[authserver New] accounts repo is required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		accounts: repo,
		logger:   zerolog.Nop(),
	}
	s.tokens = NewTokenIssuer(NewHMACSigner(cfg.GetJWTSecret()), cfg.GetAccessTokenExpiry(), cfg.GetRefreshTokenExpiry())
	for _, opt := range opts {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) Tokens() *TokenIssuer {
	return s.tokens
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	s.logger.Info().Msgf("[%-19s] %s", displayMethod, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
