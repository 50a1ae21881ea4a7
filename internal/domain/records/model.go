package records

import (
	"time"

	"github.com/google/uuid"
)

const MaxTitleLength = 100

// recordTypes maps each record type to its display label.
var recordTypes = map[string]string{
	"lab":          "Lab Report",
	"prescription": "Prescription",
	"imaging":      "Imaging",
	"discharge":    "Discharge Summary",
	"other":        "Other",
}

// Record is an uploaded medical document. Only Title and Description change
// after upload.
type Record struct {
	ID                uuid.UUID `json:"id"`
	OwnerID           uuid.UUID `json:"owner_id"`
	Title             string    `json:"title"`
	RecordType        string    `json:"record_type"`
	RecordTypeDisplay string    `json:"record_type_display"`
	Description       string    `json:"description"`
	FileKey           string    `json:"-"`
	FileName          string    `json:"file_name"`
	ContentType       string    `json:"content_type"`
	Size              int64     `json:"size"`
	UploadedAt        time.Time `json:"uploaded_at"`
}

func (r *Record) setDisplay() {
	r.RecordTypeDisplay = recordTypes[r.RecordType]
}

// Upload describes a new record and its file.
type Upload struct {
	Title       string
	RecordType  string
	Description string
	FileName    string
	ContentType string
}

// UpdateRequest is the body of PUT /records/:id.
type UpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// Filter narrows an owner's record listing.
type Filter struct {
	OwnerID        uuid.UUID
	RecordType     string
	Query          string
	UploadedAfter  *time.Time
	UploadedBefore *time.Time
}
