package authserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jrsteele09/go-auth-client/api"
	"github.com/jrsteele09/go-auth-client/authserver/accounts"
)

// LogoutResponse is the data of a logout response.
type LogoutResponse struct {
	Ok bool `json:"ok"`
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.logger.Warn().Err(err).Msg("invalid login body")
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		account, err := s.accounts.GetByUsername(req.Username)
		if err != nil {
			if !errors.Is(err, accounts.ErrNotFound) {
				s.logger.Error().Err(err).Msg("failed to query account")
				writeJSONError(w, http.StatusInternalServerError, "internal error")
				return
			}
			writeJSONError(w, http.StatusUnauthorized, "wrong username or password")
			return
		}
		if !accounts.CheckPasswordHash(req.Password, account.PasswordHash) {
			writeJSONError(w, http.StatusUnauthorized, "wrong username or password")
			return
		}

		access, err := s.tokens.CreateAccessToken(account.ID, account.Username, account.Admin)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to create access token")
			writeJSONError(w, http.StatusInternalServerError, "failed to generate jwt")
			return
		}
		refresh, err := s.tokens.CreateRefreshToken(account.ID, account.Username, account.Admin)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to create refresh token")
			writeJSONError(w, http.StatusInternalServerError, "failed to generate jwt")
			return
		}

		if err := s.accounts.SetLastLogin(account.ID, NowTimeFunc()); err != nil {
			s.logger.Warn().Err(err).Str("user_id", account.ID).Msg("failed to record last login")
		}

		s.setRefreshCookie(w, r, refresh, int(s.tokens.RefreshTTL()/time.Second))
		writeData(w, http.StatusOK, api.AccessResponse{Access: access})
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(api.RefreshCookieName)
		if err != nil || cookie.Value == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing refresh token")
			return
		}

		claims, err := s.tokens.Verify(cookie.Value, TokenTypeRefresh)
		if err != nil {
			s.logger.Debug().Err(err).Msg("refresh token rejected")
			writeJSONError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}

		account, err := s.accounts.GetByID(claims.Subject)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "user no longer exists")
			return
		}

		access, err := s.tokens.CreateAccessToken(account.ID, account.Username, account.Admin)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to create access token")
			writeJSONError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		writeData(w, http.StatusOK, api.AccessResponse{Access: access})
	}
}

// LogoutHandler expires the refresh cookie on every path it was ever issued on.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, path := range api.LegacyRefreshCookiePaths {
			http.SetCookie(w, &http.Cookie{
				Name:     api.RefreshCookieName,
				Value:    "",
				Path:     path,
				HttpOnly: true,
				MaxAge:   -1,
				Expires:  time.Unix(0, 0),
			})
		}
		writeData(w, http.StatusOK, LogoutResponse{Ok: true})
	}
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "user not authenticated")
			return
		}
		account, err := s.accounts.GetByID(claims.Subject)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "user not found")
			return
		}
		writeData(w, http.StatusOK, api.UserResponse{Username: account.Username})
	}
}

func (s *Server) HasAdminHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, struct{}{})
	}
}

func (s *Server) PingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("pong"))
	}
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     api.RefreshCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}
