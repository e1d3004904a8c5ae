// Package auth establishes the caller identity used by bucket management
// authorization. Token issuance lives in a separate service; this package
// only validates bearer tokens and the admin key.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkezh/casket/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const identityContextKey = "casketIdentity"

// ErrInvalidToken signals a bearer token that failed validation.
var ErrInvalidToken = errors.New("invalid or expired token")

// Identity represents the authenticated principal.
type Identity struct {
	ID        uuid.UUID
	IsAdmin   bool
	KeyPrefix *string
}

// CanManage reports whether the identity may manage resources owned by ownerID.
func (i Identity) CanManage(ownerID uuid.UUID) bool {
	return i.IsAdmin || i.ID == ownerID
}

// Verifier validates bearer tokens and the admin key header.
type Verifier struct {
	cfg    config.AuthConfig
	parser *jwt.Parser
}

// NewVerifier builds a Verifier from auth configuration.
func NewVerifier(cfg config.AuthConfig) *Verifier {
	return &Verifier{
		cfg:    cfg,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name})),
	}
}

// VerifyToken parses and validates an access token, returning the identity.
func (v *Verifier) VerifyToken(token string) (Identity, error) {
	parsed, err := v.parser.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return []byte(v.cfg.TokenSecret), nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	identity := Identity{ID: id}
	if admin, ok := claims["admin"].(bool); ok {
		identity.IsAdmin = admin
	}
	if prefix, ok := claims["key_prefix"].(string); ok && prefix != "" {
		identity.KeyPrefix = &prefix
	}
	return identity, nil
}

// VerifyAdminKey compares the supplied key against the configured bcrypt hash.
func (v *Verifier) VerifyAdminKey(key string) bool {
	if v.cfg.AdminKeyHash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(v.cfg.AdminKeyHash), []byte(key)) == nil
}

// HashAdminKey produces a bcrypt hash suitable for CASKET_ADMIN_KEY_HASH.
func HashAdminKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash admin key: %w", err)
	}
	return string(hash), nil
}

// Middleware authenticates requests via bearer token or admin key and
// injects the resulting identity into the request context.
func Middleware(verifier *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader("X-Admin-Key"); key != "" {
			if !verifier.VerifyAdminKey(key) {
				c.AbortWithStatusJSON(401, gin.H{"error": "invalid admin key"})
				return
			}
			c.Set(identityContextKey, Identity{ID: uuid.Nil, IsAdmin: true})
			c.Next()
			return
		}

		token := extractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(401, gin.H{"error": "missing authorization header"})
			return
		}

		identity, err := verifier.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(401, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(identityContextKey, identity)
		c.Next()
	}
}

// OptionalMiddleware attaches an identity when valid credentials are
// present but lets anonymous requests through. Routes that accept either a
// bearer token or an upload token use this and decide authorization
// themselves.
func OptionalMiddleware(verifier *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader("X-Admin-Key"); key != "" && verifier.VerifyAdminKey(key) {
			c.Set(identityContextKey, Identity{ID: uuid.Nil, IsAdmin: true})
			c.Next()
			return
		}

		if token := extractBearerToken(c.GetHeader("Authorization")); token != "" {
			if identity, err := verifier.VerifyToken(token); err == nil {
				c.Set(identityContextKey, identity)
			}
		}
		c.Next()
	}
}

// CurrentIdentity extracts the authenticated identity from the context.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	value, exists := c.Get(identityContextKey)
	if !exists {
		return Identity{}, false
	}
	identity, ok := value.(Identity)
	return identity, ok
}

// IssueToken signs a short-lived access token. Exposed for tests and local
// tooling; production tokens come from the external auth service.
func IssueToken(secret string, identity Identity, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   identity.ID.String(),
		"admin": identity.IsAdmin,
		"exp":   time.Now().Add(ttl).Unix(),
		"iat":   time.Now().Unix(),
	}
	if identity.KeyPrefix != nil {
		claims["key_prefix"] = *identity.KeyPrefix
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func extractBearerToken(header string) string {
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
