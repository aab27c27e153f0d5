package validator

import (
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/feichai0017/pdf-task-processor/pkg/logger"
)

// UploadValidator checks multipart uploads against the configured limits.
type UploadValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

// ValidatorConfig 上传限制
type ValidatorConfig struct {
	MaxFiles     int      // files per request
	MaxFileSize  int64    // bytes per file
	AllowedTypes []string // declared MIME types
}

// ValidationError describes why a request was rejected.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewUploadValidator creates a validator. A nil config accepts up to five
// PDFs of 10MB each.
func NewUploadValidator(log logger.Logger, config *ValidatorConfig) *UploadValidator {
	if config == nil {
		config = &ValidatorConfig{
			MaxFiles:     5,
			MaxFileSize:  10 * 1024 * 1024,
			AllowedTypes: []string{"application/pdf"},
		}
	}
	return &UploadValidator{
		logger: log,
		config: config,
	}
}

// ValidateFiles rejects the whole batch on the first offending file.
func (v *UploadValidator) ValidateFiles(files []*multipart.FileHeader) error {
	if len(files) == 0 {
		return &ValidationError{
			Code:    "NO_FILES",
			Message: "No files uploaded",
			Field:   "files",
		}
	}
	if len(files) > v.config.MaxFiles {
		return &ValidationError{
			Code:    "TOO_MANY_FILES",
			Message: fmt.Sprintf("At most %d files can be uploaded at once", v.config.MaxFiles),
			Field:   "files",
		}
	}

	for _, file := range files {
		if err := v.ValidateFile(file); err != nil {
			v.logger.Warn("Rejected upload",
				logger.String("filename", file.Filename),
				logger.Int64("size", file.Size),
				logger.Error(err),
			)
			return err
		}
	}
	return nil
}

// ValidateFile checks one file's size and declared content type.
func (v *UploadValidator) ValidateFile(file *multipart.FileHeader) error {
	if file.Size > v.config.MaxFileSize {
		return &ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File %s exceeds maximum size of %d bytes", file.Filename, v.config.MaxFileSize),
			Field:   "size",
		}
	}

	mimeType := ContentType(file)
	for _, allowed := range v.config.AllowedTypes {
		if strings.EqualFold(mimeType, allowed) {
			return nil
		}
	}
	return &ValidationError{
		Code:    "INVALID_MIME_TYPE",
		Message: "Only PDF files are allowed",
		Field:   "mimetype",
	}
}

// ContentType returns the declared MIME type of an upload without parameters.
func ContentType(file *multipart.FileHeader) string {
	mimeType := file.Header.Get("Content-Type")
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
