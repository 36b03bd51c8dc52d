package domain

import (
	"fmt"
	"strings"
)

// RequestKind selects how the transport encodes the upload request
type RequestKind string

const (
	// KindRawBody sends a single file as the raw request body
	KindRawBody RequestKind = "raw"
	// KindMultipart sends files and form parameters as multipart/form-data
	KindMultipart RequestKind = "multipart"
)

// File is one file reference attached to an upload job
type File struct {
	Path        string `json:"path"`
	FieldName   string `json:"field_name,omitempty"`   // multipart form field
	RemoteName  string `json:"remote_name,omitempty"`  // file name seen by the server
	ContentType string `json:"content_type,omitempty"` // declared content type
}

// Param is a single form parameter. Parameters are kept as an ordered list
// because the receiving server may observe field order.
type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Job describes one upload job. It is never mutated after creation; a retry
// with different intent is a new Job with a new ID.
type Job struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Kind       RequestKind       `json:"kind"`
	Files      []File            `json:"files"`
	Headers    map[string]string `json:"headers"`
	Parameters []Param           `json:"parameters"`
	MaxRetries int               `json:"max_retries"`
}

// Validate checks the structural invariants a job must satisfy before dispatch
func (j *Job) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidJob)
	}
	if strings.TrimSpace(j.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidJob)
	}
	if strings.TrimSpace(j.Method) == "" {
		return fmt.Errorf("%w: method is required", ErrInvalidJob)
	}
	if len(j.Files) == 0 {
		return fmt.Errorf("%w: at least one file is required", ErrInvalidJob)
	}
	for i, f := range j.Files {
		if strings.TrimSpace(f.Path) == "" {
			return fmt.Errorf("%w: file %d has an empty path", ErrInvalidJob, i)
		}
	}
	if j.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidJob)
	}
	return nil
}
