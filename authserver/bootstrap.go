package authserver

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/jrsteele09/go-auth-client/authserver/accounts"
)

const DefaultAdminUsername = "admin"

// BootstrapAdmin makes sure an admin account exists. When it creates one
// without a password it generates a random one and returns it; an empty
// generatedPassword means nothing was generated.
func (s *Server) BootstrapAdmin(username, password string) (generatedPassword string, err error) {
	if username == "" {
		username = DefaultAdminUsername
	}

	existing, err := s.accounts.List(0, 0)
	if err != nil {
		return "", fmt.Errorf("[authserver BootstrapAdmin] list accounts: %w", err)
	}
	for _, a := range existing {
		if a.Admin {
			s.logger.Info().Str("username", a.Username).Msg("admin account already exists")
			return "", nil
		}
	}

	if password == "" {
		passwordBytes := make([]byte, 16)
		if _, err := rand.Read(passwordBytes); err != nil {
			return "", fmt.Errorf("[authserver BootstrapAdmin] generate password: %w", err)
		}
		password = base64.URLEncoding.EncodeToString(passwordBytes)
		generatedPassword = password
	}

	admin, err := accounts.New(username, password, true)
	if err != nil {
		return "", fmt.Errorf("[authserver BootstrapAdmin] %w", err)
	}
	if err := s.accounts.Create(admin); err != nil {
		return "", fmt.Errorf("[authserver BootstrapAdmin] create %s: %w", username, err)
	}

	s.logger.Info().Str("username", username).Msg("created admin account")
	return generatedPassword, nil
}
