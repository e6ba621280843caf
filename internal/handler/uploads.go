package handler

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"account-server/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var allowedImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// saveUpload stores the multipart file under field in the temp dir and returns its
// path. It returns "" with a nil error when the field is absent. The service removes
// the file once it has been uploaded.
func (h *AccountHandler) saveUpload(c *gin.Context, field string) (string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %s: %v", models.ErrBadRequest, field, err)
	}
	if fh.Size > h.cfg.MaxUploadBytes {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", models.ErrInvalidInput, field, h.cfg.MaxUploadBytes)
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedImageExtensions[ext] {
		return "", fmt.Errorf("%w: %s must be an image", models.ErrInvalidInput, field)
	}

	dir := h.cfg.UploadTempDir
	if dir == "" {
		dir = os.TempDir()
	}
	dst := filepath.Join(dir, uuid.NewString()+ext)
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		return "", fmt.Errorf("failed to store %s: %w", field, err)
	}
	return dst, nil
}

func removeQuietly(paths ...string) {
	for _, p := range paths {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}
