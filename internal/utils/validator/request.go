package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ExtractTextRequest is the body of POST /extract-text.
type ExtractTextRequest struct {
	FileIDs []int64 `json:"fileIds" binding:"required,min=1"`
}

// MergeRequest is the body of POST /merge.
type MergeRequest struct {
	FileIDs        []int64 `json:"fileIds" binding:"required,min=2"`
	OutputFilename string  `json:"outputFilename"`
}

// ConvertRequest is the body of POST /convert-to-images.
type ConvertRequest struct {
	// FileID is a pointer so that 0 reaches the lookup and fails there
	// instead of being taken for a missing field.
	FileID *int64 `json:"fileId" binding:"required"`
	Format string `json:"format" binding:"omitempty,oneof=png jpg"`
}

// DefaultImageFormat is used when a convert request names no format.
const DefaultImageFormat = "png"

// RequestError turns a binding failure into a ValidationError naming the
// first offending field.
func RequestError(err error) *ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{
			Code:    "INVALID_BODY",
			Message: fmt.Sprintf("Invalid request body: %v", err),
		}
	}

	fe := verrs[0]
	field := jsonName(fe.Field())
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", field)
	case "min":
		msg = fmt.Sprintf("%s must contain at least %s items", field, fe.Param())
	case "oneof":
		msg = fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		msg = fmt.Sprintf("%s is invalid", field)
	}
	return &ValidationError{
		Code:    "INVALID_FIELD",
		Message: msg,
		Field:   field,
	}
}

func jsonName(field string) string {
	switch field {
	case "FileIDs":
		return "fileIds"
	case "FileID":
		return "fileId"
	case "OutputFilename":
		return "outputFilename"
	}
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
