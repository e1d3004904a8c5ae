package file

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dkezh/casket/internal/auth"
	"github.com/dkezh/casket/internal/bucket"
	"github.com/dkezh/casket/internal/delivery"
	"github.com/dkezh/casket/internal/metrics"
	"github.com/dkezh/casket/internal/token"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts file operations. Management routes go on the
// authenticated group; upload and download go on the public group, where
// upload accepts either an authenticated owner or an upload token and
// download needs no credentials at all.
func RegisterRoutes(protected, public *gin.RouterGroup, service *Service, buckets *bucket.Service, tokens *token.Service) {
	handler := &httpHandler{service: service, buckets: buckets, tokens: tokens}
	protected.GET("/buckets/:bucketID/files", handler.listFiles)
	protected.PATCH("/buckets/:bucketID/files/*filePath", handler.patchFile)
	protected.DELETE("/buckets/:bucketID/files/*filePath", handler.deleteFile)

	public.POST("/buckets/:bucketID/files", handler.uploadFile)
	public.GET("/files/:bucketID/*filePath", handler.downloadFile)
	public.HEAD("/files/:bucketID/*filePath", handler.downloadFile)
}

type httpHandler struct {
	service *Service
	buckets *bucket.Service
	tokens  *token.Service
}

func (h *httpHandler) uploadFile(c *gin.Context) {
	bucketID := c.Param("bucketID")

	if !h.authorizeUpload(c, bucketID) {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}

	path := c.PostForm("path")
	if path == "" {
		path = fileHeader.Filename
	}

	content, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return
	}
	defer content.Close()

	stored, created, err := h.service.Upload(
		c.Request.Context(),
		bucketID,
		path,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		content,
	)
	if err != nil {
		switch {
		case errors.Is(err, bucket.ErrBucketNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "bucket not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		}
		return
	}

	metrics.Uploads.Inc()
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, stored)
}

// authorizeUpload admits the request via an upload token or via the bucket
// owner's credentials. A token mints exactly one upload; consuming it here
// means a rejected multipart body still costs a use.
func (h *httpHandler) authorizeUpload(c *gin.Context, bucketID string) bool {
	if uploadToken := c.GetHeader("X-Upload-Token"); uploadToken != "" {
		tokenBucket, err := h.tokens.Consume(c.Request.Context(), uploadToken)
		if err != nil || tokenBucket != bucketID {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid upload token"})
			return false
		}
		return true
	}

	identity, ok := auth.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return false
	}

	b, err := h.buckets.Get(c.Request.Context(), bucketID)
	if err != nil {
		if errors.Is(err, bucket.ErrBucketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "bucket not found"})
			return false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return false
	}
	if !identity.CanManage(b.OwnerID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return false
	}
	return true
}

func (h *httpHandler) listFiles(c *gin.Context) {
	identity, ok := auth.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	bucketID := c.Param("bucketID")
	b, err := h.buckets.Get(c.Request.Context(), bucketID)
	if err != nil {
		if errors.Is(err, bucket.ErrBucketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "bucket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list files"})
		return
	}
	if !identity.CanManage(b.OwnerID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	files, err := h.service.List(c.Request.Context(), bucketID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list files"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (h *httpHandler) patchFile(c *gin.Context) {
	identity, ok := auth.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	bucketID := c.Param("bucketID")
	b, err := h.buckets.Get(c.Request.Context(), bucketID)
	if err != nil {
		if errors.Is(err, bucket.ErrBucketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "bucket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to patch file"})
		return
	}
	if !identity.CanManage(b.OwnerID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	var offset int64
	if raw := c.Query("offset"); raw != "" {
		offset, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
			return
		}
	}
	appendMode := c.Query("append") == "true"

	stored, err := h.service.Patch(
		c.Request.Context(),
		bucketID,
		wildcardPath(c),
		c.Request.Body,
		offset,
		appendMode,
	)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to patch file"})
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (h *httpHandler) deleteFile(c *gin.Context) {
	identity, ok := auth.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	bucketID := c.Param("bucketID")
	b, err := h.buckets.Get(c.Request.Context(), bucketID)
	if err != nil {
		if errors.Is(err, bucket.ErrBucketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "bucket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete file"})
		return
	}

	err = h.service.Delete(c.Request.Context(), bucketID, wildcardPath(c), identity.CanManage(b.OwnerID))
	if err != nil {
		switch {
		case errors.Is(err, ErrFileNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		case errors.Is(err, ErrDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete file"})
		}
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) downloadFile(c *gin.Context) {
	bucketID := c.Param("bucketID")

	meta, handle, err := h.service.Open(c.Request.Context(), bucketID, wildcardPath(c))
	if err != nil {
		if errors.Is(err, bucket.ErrBucketNotFound) || errors.Is(err, ErrFileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
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
		h.buckets.RecordDownload(c.Request.Context(), bucketID)
	}
}

// wildcardPath strips the leading slash gin leaves on catch-all params.
func wildcardPath(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("filePath"), "/")
}
