package service

import "errors"

// Engine error taxonomy. Background paths log these; API-facing paths
// surface them as result structs, never as panics.
var (
	// ErrValidation marks bad input rejected synchronously, never persisted
	ErrValidation = errors.New("validation failure")

	// ErrStateConflict marks an operation rejected because of in-flight
	// state (e.g. install requested while another install runs)
	ErrStateConflict = errors.New("state conflict")

	// ErrNotFound marks a missing record
	ErrNotFound = errors.New("not found")
)

// BackupResult is the outcome of a backup creation
type BackupResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Filename  string `json:"filename,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// UpdateResult is the outcome of an update operation
type UpdateResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Phase   string `json:"phase,omitempty"`
}
