package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/NirnayK/InvoxAI-sub000/constants"
)

// InvoiceFile represents an invoice file for data transfer between layers.
// Status is monotonic within one batch run: once PROCESSING it only moves to
// PROCESSED or FAILED.
type InvoiceFile struct {
	ID            uuid.UUID            `json:"id"`
	Filename      string               `json:"filename"`
	MimeType      string               `json:"mime_type"`
	SourcePath    string               `json:"source_path"`
	Status        constants.FileStatus `json:"status"`
	ParsedDetails []byte               `json:"parsed_details,omitempty"` // JSON payload, nil until extracted
	NeedsReview   bool                 `json:"needs_review"`
	ErrorMessage  string               `json:"error_message,omitempty"`
	UploadedAt    time.Time            `json:"uploaded_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}
