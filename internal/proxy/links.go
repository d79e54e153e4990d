// Package proxy issues signed public download links and serves the
// redirect endpoint that resolves them. A link wraps the raw asset store
// URL in an HMAC-signed token, so the store location is never shared
// directly and links expire on their own.
package proxy

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSecret = errors.New("signing secret is required")
	ErrInvalidToken  = errors.New("invalid link token")
)

// TokenLifetime is how long a signed link stays valid.
const TokenLifetime = 30 * 24 * time.Hour

// LinkClaims is the payload carried by a signed link token.
type LinkClaims struct {
	AssetName string `json:"asset_name"`
	AssetURL  string `json:"asset_url"`
	jwt.RegisteredClaims
}

// Signer creates and resolves signed link tokens for one proxy domain.
type Signer struct {
	secret []byte
	domain string
	now    func() time.Time
}

func NewSigner(secret []byte, domain string) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	return &Signer{secret: secret, domain: domain, now: time.Now}, nil
}

// WrapURL returns the public link for an asset:
// https://<domain>/file/<name>/<token>. The filename segment is cosmetic;
// only the token is authoritative.
func (s *Signer) WrapURL(assetName, rawURL string) (string, error) {
	token, err := s.Sign(assetName, rawURL)
	if err != nil {
		return "", err
	}
	clean := url.PathEscape(strings.ReplaceAll(assetName, " ", "_"))
	return fmt.Sprintf("https://%s/file/%s/%s", s.domain, clean, token), nil
}

// Sign issues a token binding the asset name to its store URL.
func (s *Signer) Sign(assetName, rawURL string) (string, error) {
	claims := &LinkClaims{
		AssetName: assetName,
		AssetURL:  rawURL,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(s.now().Add(TokenLifetime)),
			Issuer:    "release-relay",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Resolve validates a token and returns its claims.
func (s *Signer) Resolve(tokenString string) (*LinkClaims, error) {
	claims := &LinkClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
