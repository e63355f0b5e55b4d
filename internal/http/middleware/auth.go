// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements AuthGate, which admits a request when it carries a
// configured pre-shared key, a bearer JWT signed with the shared HS256 secret,
// or an Origin/Referer from the trusted origin list. The resolved caller
// identity is stored in the Gin context for logging and rate limiting.
package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// identityKey is the Gin context key holding the authenticated caller.
	identityKey = "userID"
	// authMethodKey records which credential admitted the request.
	authMethodKey = "authMethod"

	// HeaderAPIKey carries a pre-shared key.
	HeaderAPIKey = "X-API-Key"
)

// Auth methods reported by AuthMethod.
const (
	AuthAPIKey   = "api_key"
	AuthJWT      = "jwt"
	AuthOrigin   = "origin"
	AuthDisabled = "disabled"
)

// AuthOptions configures AuthGate.
//
// Required=false lets every request through (identity is still resolved when
// a credential is present). Config validation forbids that in production.
type AuthOptions struct {
	Required       bool
	APIKeys        []string
	JWTSecret      string
	AllowedOrigins []string
}

// AuthGate returns a middleware that rejects unauthenticated requests with
// 401 and the standard error envelope.
func AuthGate(opt AuthOptions) gin.HandlerFunc {
	keys := make([][]byte, 0, len(opt.APIKeys))
	for _, k := range opt.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}
	origins := make(map[string]struct{}, len(opt.AllowedOrigins))
	for _, o := range opt.AllowedOrigins {
		if o = normalizeOrigin(o); o != "" {
			origins[o] = struct{}{}
		}
	}
	secret := []byte(opt.JWTSecret)

	return func(c *gin.Context) {
		identity, method := authenticate(c.Request, keys, secret, origins)
		if method != "" {
			c.Set(authMethodKey, method)
			if identity != "" {
				c.Set(identityKey, identity)
			}
			c.Next()
			return
		}
		if !opt.Required {
			c.Set(authMethodKey, AuthDisabled)
			c.Next()
			return
		}
		abortWithError(c, http.StatusUnauthorized, "unauthorized", "authentication required")
	}
}

// authenticate resolves the caller. An empty method means no credential was
// accepted. Origin-admitted callers have no identity of their own.
func authenticate(r *http.Request, keys [][]byte, secret []byte, origins map[string]struct{}) (identity, method string) {
	if k := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); k != "" && matchKey(keys, k) {
		return keyIdentity(k), AuthAPIKey
	}

	if tok, ok := bearerToken(r.Header.Get("Authorization")); ok {
		if matchKey(keys, tok) {
			return keyIdentity(tok), AuthAPIKey
		}
		if len(secret) > 0 {
			if sub, err := parseJWT(tok, secret); err == nil {
				return "jwt:" + sub, AuthJWT
			}
		}
	}

	if len(origins) > 0 {
		for _, h := range []string{r.Header.Get("Origin"), r.Header.Get("Referer")} {
			if o := normalizeOrigin(h); o != "" {
				if _, ok := origins[o]; ok {
					return "", AuthOrigin
				}
			}
		}
	}
	return "", ""
}

// matchKey compares candidate against every configured key in constant time.
func matchKey(keys [][]byte, candidate string) bool {
	c := []byte(candidate)
	found := 0
	for _, k := range keys {
		found |= subtle.ConstantTimeCompare(k, c)
	}
	return found == 1
}

// keyIdentity names a key holder without exposing the key in logs.
func keyIdentity(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "key:" + hex.EncodeToString(sum[:6])
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}

var errNoSubject = errors.New("token has no subject")

// parseJWT validates an HS256 token and returns its subject. Tokens without a
// subject are rejected; the subject keys the caller's rate limit.
func parseJWT(raw string, secret []byte) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errNoSubject
	}
	return claims.Subject, nil
}

// normalizeOrigin reduces an Origin or Referer value to scheme://host[:port].
func normalizeOrigin(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || v == "null" {
		return ""
	}
	u, err := url.Parse(v)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

// Identity returns the authenticated caller, or "" for anonymous and
// origin-admitted requests.
func Identity(c *gin.Context) string {
	v, _ := c.Get(identityKey)
	return asString(v)
}

// AuthMethod returns how the request was admitted.
func AuthMethod(c *gin.Context) string {
	v, _ := c.Get(authMethodKey)
	return asString(v)
}
