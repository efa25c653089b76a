// Package identity extracts caller identity from inbound bearer tokens.
// It is consume-only: the router verifies and decodes tokens issued by an
// upstream collaborator, it never mints or signs tokens itself.
package identity

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of bearer-token claims the router cares about: the
// subject (mapped to RequestContext.UserID) and an opaque scope set used
// for authorization gates on routes that require them.
type Claims struct {
	Subject string
	Scopes  map[string]struct{}
}

// Config configures token verification. Exactly one of Secret or
// PublicKeyPEM should be set, matching the token's signing algorithm.
type Config struct {
	Secret       string
	PublicKeyPEM string
	Issuer       string
	Audience     string
}

// Verifier decodes and verifies bearer tokens into Claims.
type Verifier struct {
	hmacSecret []byte
	rsaKey     *rsa.PublicKey
	parserOpts []jwt.ParserOption
}

func NewVerifier(cfg Config) (*Verifier, error) {
	v := &Verifier{hmacSecret: []byte(cfg.Secret)}

	if cfg.PublicKeyPEM != "" {
		block, _ := pem.Decode([]byte(cfg.PublicKeyPEM))
		if block == nil {
			return nil, errors.New("identity: failed to decode PEM block for RSA public key")
		}
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("identity: parse RSA public key: %w", err)
		}
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("identity: public key is not RSA")
		}
		v.rsaKey = key
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "RS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	v.parserOpts = opts
	return v, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (any, error) {
	switch token.Method.Alg() {
	case "HS256":
		if len(v.hmacSecret) == 0 {
			return nil, errors.New("identity: HMAC secret not configured")
		}
		return v.hmacSecret, nil
	case "RS256":
		if v.rsaKey == nil {
			return nil, errors.New("identity: RSA public key not configured")
		}
		return v.rsaKey, nil
	default:
		return nil, fmt.Errorf("identity: unexpected signing method %s", token.Method.Alg())
	}
}

// VerifyBearer strips the "Bearer " prefix, verifies the token's signature
// and registered claims, and extracts sub/scopes. A missing or malformed
// header, or a failed verification, returns a non-nil error; callers
// should treat any error as "anonymous", per the router's auth contract.
func (v *Verifier) VerifyBearer(authHeader string) (Claims, error) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return Claims{}, errors.New("identity: missing or malformed Authorization header")
	}
	tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

	token, err := jwt.Parse(tokenStr, v.keyFunc, v.parserOpts...)
	if err != nil {
		return Claims{}, fmt.Errorf("identity: %w", err)
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, errors.New("identity: invalid token claims")
	}

	c := Claims{Scopes: make(map[string]struct{})}
	if sub, ok := mapClaims["sub"].(string); ok {
		c.Subject = sub
	}
	switch scopes := mapClaims["scopes"].(type) {
	case []any:
		for _, s := range scopes {
			if str, ok := s.(string); ok {
				c.Scopes[str] = struct{}{}
			}
		}
	case string:
		for _, s := range strings.Fields(scopes) {
			c.Scopes[s] = struct{}{}
		}
	}
	return c, nil
}

// HasScope reports whether the claims include scope.
func (c Claims) HasScope(scope string) bool {
	_, ok := c.Scopes[scope]
	return ok
}
