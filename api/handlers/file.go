package handlers

import (
	"errors"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-task-processor/internal/models"
	"github.com/feichai0017/pdf-task-processor/internal/service/file"
	"github.com/feichai0017/pdf-task-processor/internal/utils/validator"
	"github.com/feichai0017/pdf-task-processor/pkg/logger"
)

// multipart framing allowance on top of the per-file limits
const formOverhead = 1 << 20

type FileHandler struct {
	service   file.FileStore
	validator *validator.UploadValidator
	maxBody   int64
	logger    logger.Logger
}

func NewFileHandler(service file.FileStore, uploads *validator.UploadValidator, maxUploadBytes int64, log logger.Logger) *FileHandler {
	return &FileHandler{
		service:   service,
		validator: uploads,
		maxBody:   maxUploadBytes + formOverhead,
		logger:    log,
	}
}

// ListFiles returns every stored file in upload order.
func (h *FileHandler) ListFiles(c *gin.Context) {
	files, err := h.service.List(c.Request.Context())
	if err != nil {
		handleError(c, h.logger, http.StatusInternalServerError, "Failed to fetch files", err)
		return
	}
	if files == nil {
		files = []*models.StoredFile{}
	}
	c.JSON(http.StatusOK, files)
}

// Upload stores the multipart "files" field.
func (h *FileHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handleError(c, h.logger, http.StatusRequestEntityTooLarge, "Upload too large", err)
			return
		}
		handleError(c, h.logger, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	headers := form.File["files"]
	if err := h.validator.ValidateFiles(headers); err != nil {
		handleError(c, h.logger, http.StatusBadRequest, err.Error(), err)
		return
	}

	saved, err := h.service.SaveBatch(c.Request.Context(), headers)
	if err != nil {
		handleError(c, h.logger, http.StatusInternalServerError, "Failed to upload files", err)
		return
	}

	c.JSON(http.StatusCreated, saved)
}

// DeleteFile removes a file unless a running task holds it.
func (h *FileHandler) DeleteFile(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid file ID", nil)
		return
	}

	deleted, err := h.service.Delete(c.Request.Context(), id)
	switch {
	case errors.Is(err, models.ErrFileInUse):
		handleError(c, h.logger, http.StatusConflict, "File is in use by a running task", err)
		return
	case err != nil:
		handleError(c, h.logger, http.StatusInternalServerError, "Failed to delete file", err)
		return
	case !deleted:
		handleError(c, h.logger, http.StatusNotFound, "File not found", nil)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "File deleted successfully"})
}

// ViewFile streams a file for inline display.
func (h *FileHandler) ViewFile(c *gin.Context) {
	h.serve(c, "inline", "File not found", "Failed to view file")
}

// DownloadFile streams a file as an attachment.
func (h *FileHandler) DownloadFile(c *gin.Context) {
	h.serve(c, "attachment", "File not found", "Failed to download file")
}

// DownloadResult streams a task output as an attachment.
func (h *FileHandler) DownloadResult(c *gin.Context) {
	h.serve(c, "attachment", "Result file not found", "Failed to get result file")
}

func (h *FileHandler) serve(c *gin.Context, disposition, notFound, failed string) {
	id, ok := parseID(c, "id")
	if !ok {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid file ID", nil)
		return
	}

	rc, f, err := h.service.Open(c.Request.Context(), id)
	if errors.Is(err, models.ErrFileNotFound) {
		handleError(c, h.logger, http.StatusNotFound, notFound, nil)
		return
	}
	if err != nil {
		handleError(c, h.logger, http.StatusInternalServerError, failed, err)
		return
	}
	defer rc.Close()

	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, f.SizeBytes, contentType, rc, map[string]string{
		"Content-Disposition": contentDisposition(disposition, f.DisplayName),
	})
}

func contentDisposition(disposition, filename string) string {
	if v := mime.FormatMediaType(disposition, map[string]string{"filename": filename}); v != "" {
		return v
	}
	return disposition
}
