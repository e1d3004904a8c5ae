package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkezh/casket/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiddlewareRouter(t *testing.T, verifier *Verifier) (*gin.Engine, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	echo := func(c *gin.Context) {
		identity, ok := CurrentIdentity(c)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"anonymous": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sub": identity.ID.String(), "admin": identity.IsAdmin})
	}

	strict := gin.New()
	strict.GET("/whoami", Middleware(verifier), echo)

	optional := gin.New()
	optional.GET("/whoami", OptionalMiddleware(verifier), echo)
	return strict, optional
}

func TestMiddlewareRejectsMissingCredentials(t *testing.T) {
	verifier := NewVerifier(config.AuthConfig{TokenSecret: "test-secret"})
	strict, optional := newMiddlewareRouter(t, verifier)

	rec := httptest.NewRecorder()
	strict.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	optional.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "anonymous")
}

func TestMiddlewareAcceptsBearerToken(t *testing.T) {
	verifier := NewVerifier(config.AuthConfig{TokenSecret: "test-secret"})
	strict, _ := newMiddlewareRouter(t, verifier)

	id := uuid.New()
	token, err := IssueToken("test-secret", Identity{ID: id}, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	strict.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id.String())
}

func TestMiddlewareRejectsTamperedToken(t *testing.T) {
	verifier := NewVerifier(config.AuthConfig{TokenSecret: "test-secret"})
	strict, _ := newMiddlewareRouter(t, verifier)

	token, err := IssueToken("other-secret", Identity{ID: uuid.New()}, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	strict.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareAcceptsAdminKey(t *testing.T) {
	hash, err := HashAdminKey("sesame")
	require.NoError(t, err)

	verifier := NewVerifier(config.AuthConfig{TokenSecret: "test-secret", AdminKeyHash: hash})
	strict, _ := newMiddlewareRouter(t, verifier)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Admin-Key", "sesame")
	rec := httptest.NewRecorder()
	strict.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"admin":true`)

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Admin-Key", "wrong")
	rec = httptest.NewRecorder()
	strict.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
