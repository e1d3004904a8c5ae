package shorturl

import (
	"errors"
	"net/http"

	"github.com/dkezh/casket/internal/auth"
	"github.com/dkezh/casket/internal/bucket"
	"github.com/dkezh/casket/internal/delivery"
	"github.com/dkezh/casket/internal/file"
	"github.com/dkezh/casket/internal/metrics"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts short URL resolution on the public group and
// management on the authenticated group.
func RegisterRoutes(protected, public *gin.RouterGroup, service *Service, files *file.Service, buckets *bucket.Service) {
	handler := &httpHandler{service: service, files: files, buckets: buckets}
	public.GET("/s/:code", handler.resolve)
	public.HEAD("/s/:code", handler.resolve)
	protected.DELETE("/s/:code", handler.deleteShortURL)
}

type httpHandler struct {
	service *Service
	files   *file.Service
	buckets *bucket.Service
}

// resolve serves the target file's content directly; the short URL is a
// stable address, not a redirect.
func (h *httpHandler) resolve(c *gin.Context) {
	su, err := h.service.Resolve(c.Request.Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, ErrShortURLNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve short url"})
		return
	}

	meta, handle, err := h.files.Open(c.Request.Context(), su.BucketID, su.FilePath)
	if err != nil {
		if errors.Is(err, bucket.ErrBucketNotFound) || errors.Is(err, file.ErrFileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}
	defer handle.Close()

	counted := delivery.Serve(c.Writer, c.Request, delivery.Resource{
		Name:       meta.Name,
		Size:       meta.Size,
		MimeType:   meta.MimeType,
		ModTime:    meta.UpdatedAt,
		ETag:       delivery.ETagFor(meta.Size, meta.UpdatedAt),
		Attachment: c.Query("download") == "true",
	}, handle)
	if counted {
		metrics.Downloads.Inc()
		h.buckets.RecordDownload(c.Request.Context(), su.BucketID)
	}
}

func (h *httpHandler) deleteShortURL(c *gin.Context) {
	identity, ok := auth.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.service.Delete(c.Request.Context(), identity, c.Param("code")); err != nil {
		switch {
		case errors.Is(err, ErrShortURLNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case errors.Is(err, ErrDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete short url"})
		}
		return
	}
	c.Status(http.StatusNoContent)
}
