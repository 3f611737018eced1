package domain

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusError      DocumentStatus = "error"
)

type Document struct {
	ID          string         `json:"id"`
	Filename    string         `json:"filename"`
	MimeType    string         `json:"mime_type"`
	StoragePath string         `json:"storage_path"`
	Category    string         `json:"category,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type Classification struct {
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// CanTransition reports whether a document may move from one status to another.
// Re-processing a failed or ready document restarts from processing.
func CanTransition(from, to DocumentStatus) bool {
	switch to {
	case StatusProcessing:
		return from == StatusPending || from == StatusError || from == StatusReady
	case StatusReady, StatusError:
		return from == StatusProcessing
	default:
		return false
	}
}
