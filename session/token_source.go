package session

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// TokenSource exposes the access credential to code built on x/oauth2.
// A missing credential is refreshed through the shared coordinator.
func (s *Session) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, s: s}
}

type tokenSource struct {
	ctx context.Context
	s   *Session
}

func (t *tokenSource) Token() (*oauth2.Token, error) {
	access, ok := t.s.creds.Get()
	if !ok {
		var err error
		access, err = t.s.refresher.Refresh(t.ctx)
		if err != nil {
			return nil, fmt.Errorf("[session TokenSource] %w", err)
		}
	}
	return &oauth2.Token{AccessToken: access, TokenType: "Bearer"}, nil
}
