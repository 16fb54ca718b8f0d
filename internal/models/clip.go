package models

import (
	"time"

	"github.com/google/uuid"
)

// ClipStatus represents the clip archive lifecycle.
const (
	ClipStatusRecorded  = "recorded"
	ClipStatusArchiving = "archiving"
	ClipStatusArchived  = "archived"
	ClipStatusFailed    = "failed"
)

// Clip is one recorded wind-tunnel clip known to the media index.
// Instances are query-scoped: each catalog pass builds a fresh slice.
type Clip struct {
	ID           uuid.UUID `json:"id"`
	DisplayName  string    `json:"display_name"`
	Folder       string    `json:"folder"`
	LocalPath    string    `json:"local_path,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	SizeBytes    int64     `json:"size_bytes"`
	MimeType     string    `json:"mime_type,omitempty"`
	Status       string    `json:"status"`
	S3Key        string    `json:"s3_key,omitempty"`
	S3URL        string    `json:"s3_url,omitempty"`
	AddedAt      time.Time `json:"added_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
