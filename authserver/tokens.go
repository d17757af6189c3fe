package authserver

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// UserClaims are carried by both token types. Type keeps a refresh token
// from being accepted as a bearer credential and the other way round.
type UserClaims struct {
	Username string `json:"username"`
	Admin    bool   `json:"admin,omitempty"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// Signer signs and verifies JWT tokens
type Signer interface {
	Sign(claims jwt.Claims) (string, error)
	GetVerificationKey(token *jwt.Token) (any, error)
	GetSigningMethod() jwt.SigningMethod
}

// HMACSigner implements Signer using symmetric HMAC-SHA256
type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{
		secret: []byte(secret),
	}
}

func (h *HMACSigner) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signedToken, nil
}

func (h *HMACSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

func (h *HMACSigner) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}

// TokenIssuer creates and verifies the access and refresh tokens of the backend
type TokenIssuer struct {
	signer     Signer
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenIssuer(signer Signer, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		signer:     signer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (t *TokenIssuer) RefreshTTL() time.Duration {
	return t.refreshTTL
}

func (t *TokenIssuer) CreateAccessToken(userID, username string, admin bool) (string, error) {
	return t.create(userID, username, admin, TokenTypeAccess, t.accessTTL)
}

func (t *TokenIssuer) CreateRefreshToken(userID, username string, admin bool) (string, error) {
	return t.create(userID, username, admin, TokenTypeRefresh, t.refreshTTL)
}

func (t *TokenIssuer) create(userID, username string, admin bool, tokenType string, ttl time.Duration) (string, error) {
	now := NowTimeFunc()
	claims := UserClaims{
		Username: username,
		Admin:    admin,
		Type:     tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(), // unique per token so two logins in one second differ
		},
	}
	signed, err := t.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrapf(err, "create %s token", tokenType)
	}
	return signed, nil
}

// Verify parses raw and checks its signature, expiry and type.
func (t *TokenIssuer) Verify(raw, tokenType string) (*UserClaims, error) {
	claims := &UserClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, t.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{t.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(NowTimeFunc),
	)
	if err != nil {
		return nil, errors.Wrap(err, "parse token")
	}
	if claims.Type != tokenType {
		return nil, errors.Errorf("expected %s token, got %q", tokenType, claims.Type)
	}
	return claims, nil
}
