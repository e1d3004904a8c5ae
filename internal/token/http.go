package token

import (
	"errors"
	"net/http"

	"github.com/dkezh/casket/internal/auth"
	"github.com/dkezh/casket/internal/bucket"
	"github.com/dkezh/casket/internal/expiry"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts upload-token management under the provided group.
func RegisterRoutes(group *gin.RouterGroup, service *Service, buckets *bucket.Service) {
	handler := &httpHandler{service: service, buckets: buckets}
	group.POST("/buckets/:bucketID/tokens", handler.createToken)
	group.DELETE("/tokens/:token", handler.deleteToken)
}

type httpHandler struct {
	service *Service
	buckets *bucket.Service
}

type createTokenRequest struct {
	Expires    string `json:"expires"`
	MaxUploads *int64 `json:"max_uploads"`
}

func (h *httpHandler) createToken(c *gin.Context) {
	identity, ok := auth.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	b, err := h.buckets.Get(c.Request.Context(), c.Param("bucketID"))
	if err != nil {
		if errors.Is(err, bucket.ErrBucketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "bucket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create token"})
		return
	}
	if !identity.CanManage(b.OwnerID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	var req createTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	t, err := h.service.Create(c.Request.Context(), b.ID, req.Expires, req.MaxUploads)
	if err != nil {
		if errors.Is(err, expiry.ErrInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expires value"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create token"})
		return
	}

	c.JSON(http.StatusCreated, t)
}

func (h *httpHandler) deleteToken(c *gin.Context) {
	identity, ok := auth.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	tok, err := h.service.repo.Get(c.Request.Context(), c.Param("token"))
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "token not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete token"})
		return
	}

	b, err := h.buckets.Get(c.Request.Context(), tok.BucketID)
	if err != nil {
		// owning bucket expired or gone; the token is unreachable either way
		c.JSON(http.StatusNotFound, gin.H{"error": "token not found"})
		return
	}
	if !identity.CanManage(b.OwnerID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	if err := h.service.Delete(c.Request.Context(), tok.Token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete token"})
		return
	}

	c.Status(http.StatusNoContent)
}
