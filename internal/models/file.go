package models

import (
	"time"
)

// Content types produced or accepted by the service.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeText = "text/plain"
	ContentTypePNG  = "image/png"
	ContentTypeJPEG = "image/jpeg"
)

// StoredFile is the metadata record of an uploaded or generated document.
// Bytes live in blob storage under Location and never change after Save.
type StoredFile struct {
	ID          int64     `json:"id"`
	StorageName string    `json:"filename"`
	DisplayName string    `json:"originalFilename"`
	SizeBytes   int64     `json:"filesize"`
	ContentType string    `json:"mimetype"`
	CreatedAt   time.Time `json:"uploadedAt"`
	Location    string    `json:"path"`
}

// Clone returns a copy safe to hand out of a repository.
func (f *StoredFile) Clone() *StoredFile {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}
