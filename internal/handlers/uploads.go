package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messaging-service/internal/telemetry"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// UploadHandler stores attachments on local disk for later use as fileUrl.
type UploadHandler struct {
	dir      string
	maxBytes int64
	baseURL  string
	audit    *telemetry.AuditEmitter
}

// NewUploadHandler builds an UploadHandler.
func NewUploadHandler(dir string, maxBytes int64, baseURL string, audit *telemetry.AuditEmitter) *UploadHandler {
	return &UploadHandler{dir: dir, maxBytes: maxBytes, baseURL: strings.TrimRight(baseURL, "/"), audit: audit}
}

// Upload accepts a multipart "file" field.
func (h *UploadHandler) Upload(c *gin.Context) {
	if h.maxBytes > 0 {
		// multipart framing overhead on top of the file itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+1<<20)
	}
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if h.maxBytes > 0 && file.Size > h.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload storage unavailable"})
		return
	}
	stored := uuid.NewString() + "_" + sanitizeFileName(file.Filename)
	if err := c.SaveUploadedFile(file, filepath.Join(h.dir, stored)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store file"})
		return
	}

	fileURL := h.baseURL + "/uploads/" + stored
	emitAudit(c, h.audit, "upload.create", "attachment uploaded", map[string]any{
		"file_name": stored,
		"size":      file.Size,
	})
	c.JSON(http.StatusCreated, gin.H{"fileUrl": fileURL, "fileName": file.Filename, "size": file.Size})
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeFileChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	if len(name) > 128 {
		name = name[len(name)-128:]
	}
	return name
}
