package bucket

import (
	"errors"
	"net/http"

	"github.com/dkezh/casket/internal/auth"
	"github.com/dkezh/casket/internal/expiry"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts bucket operations under the provided router group.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	group.POST("/buckets", handler.createBucket)
	group.GET("/buckets", handler.listBuckets)
	group.GET("/buckets/:bucketID", handler.getBucket)
	group.PATCH("/buckets/:bucketID", handler.updateBucket)
	group.DELETE("/buckets/:bucketID", handler.deleteBucket)
	group.GET("/buckets/:bucketID/stats", handler.bucketStats)
}

type httpHandler struct {
	service *Service
}

type createBucketRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
	Expires     string  `json:"expires"`
}

type updateBucketRequest struct {
	Expires string `json:"expires"`
}

func (h *httpHandler) createBucket(c *gin.Context) {
	identity, ok := auth.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req createBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	b, err := h.service.Create(c.Request.Context(), identity, req.Name, req.Description, req.Expires)
	if err != nil {
		if errors.Is(err, expiry.ErrInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expires value"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create bucket"})
		return
	}

	c.JSON(http.StatusCreated, b)
}

func (h *httpHandler) listBuckets(c *gin.Context) {
	identity, ok := auth.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	includeExpired := c.Query("include_expired") == "true"

	buckets, err := h.service.List(c.Request.Context(), identity, includeExpired)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list buckets"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"buckets": buckets})
}

func (h *httpHandler) getBucket(c *gin.Context) {
	b, err := h.service.Get(c.Request.Context(), c.Param("bucketID"))
	if err != nil {
		if errors.Is(err, ErrBucketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "bucket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get bucket"})
		return
	}

	c.JSON(http.StatusOK, b)
}

func (h *httpHandler) updateBucket(c *gin.Context) {
	identity, ok := auth.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req updateBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	b, err := h.service.UpdateExpiry(c.Request.Context(), identity, c.Param("bucketID"), req.Expires)
	if err != nil {
		switch {
		case errors.Is(err, ErrBucketNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "bucket not found"})
		case errors.Is(err, ErrDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		case errors.Is(err, expiry.ErrInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expires value"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update bucket"})
		}
		return
	}

	c.JSON(http.StatusOK, b)
}

func (h *httpHandler) deleteBucket(c *gin.Context) {
	identity, ok := auth.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.service.Delete(c.Request.Context(), identity, c.Param("bucketID")); err != nil {
		switch {
		case errors.Is(err, ErrBucketNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "bucket not found"})
		case errors.Is(err, ErrDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete bucket"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *httpHandler) bucketStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), c.Param("bucketID"))
	if err != nil {
		if errors.Is(err, ErrBucketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "bucket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get bucket stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
