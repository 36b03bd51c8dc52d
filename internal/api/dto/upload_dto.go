package dto

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/bg-uploader/internal/upload/domain"
	"github.com/cuongbtq/bg-uploader/internal/upload/request"
)

type CreateUploadRequest struct {
	URL            string            `json:"url"`
	Path           string            `json:"path"`
	Type           string            `json:"type"`
	Field          string            `json:"field"`
	Files          []FileDTO         `json:"files"`
	Method         string            `json:"method"`
	MaxRetries     *int              `json:"max_retries"`
	CustomUploadID string            `json:"custom_upload_id"`
	Headers        map[string]string `json:"headers"`
	Parameters     Parameters        `json:"parameters"`
	Notification   *NotificationDTO  `json:"notification"`
}

type FileDTO struct {
	Path        string `json:"path"`
	Field       string `json:"field"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
}

type NotificationDTO struct {
	Enabled            *bool  `json:"enabled"`
	Channel            string `json:"channel"`
	EnableRingTone     bool   `json:"enable_ring_tone"`
	AutoClear          bool   `json:"auto_clear"`
	OnProgressTitle    string `json:"on_progress_title"`
	OnProgressMessage  string `json:"on_progress_message"`
	OnCompleteTitle    string `json:"on_complete_title"`
	OnCompleteMessage  string `json:"on_complete_message"`
	OnErrorTitle       string `json:"on_error_title"`
	OnErrorMessage     string `json:"on_error_message"`
	OnCancelledTitle   string `json:"on_cancelled_title"`
	OnCancelledMessage string `json:"on_cancelled_message"`
}

// Parameters accepts either a JSON object, kept in document order, or a
// list of {"name", "value"} pairs
type Parameters []domain.Param

func (p *Parameters) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = nil
		return nil
	}

	if data[0] == '[' {
		var list []domain.Param
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*p = list
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("parameters must be an object or a list")
	}

	params := Parameters{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name := tok.(string)

		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("parameter %q must be a string: %w", name, err)
		}
		params = append(params, domain.Param{Name: name, Value: value})
	}

	*p = params
	return nil
}

// ToOptions converts the request body into upload options
func (r *CreateUploadRequest) ToOptions() request.Options {
	opts := request.Options{
		URL:            r.URL,
		Path:           r.Path,
		Type:           r.Type,
		Field:          r.Field,
		Method:         r.Method,
		MaxRetries:     r.MaxRetries,
		CustomUploadID: r.CustomUploadID,
		Headers:        r.Headers,
		Parameters:     r.Parameters,
	}

	for _, f := range r.Files {
		opts.Files = append(opts.Files, request.FileOptions{
			Path:        f.Path,
			Field:       f.Field,
			Name:        f.Name,
			ContentType: f.ContentType,
		})
	}

	if n := r.Notification; n != nil {
		opts.Notification = &request.NotificationOptions{
			Enabled:            n.Enabled,
			Channel:            n.Channel,
			EnableRingTone:     n.EnableRingTone,
			AutoClear:          n.AutoClear,
			OnProgressTitle:    n.OnProgressTitle,
			OnProgressMessage:  n.OnProgressMessage,
			OnCompleteTitle:    n.OnCompleteTitle,
			OnCompleteMessage:  n.OnCompleteMessage,
			OnErrorTitle:       n.OnErrorTitle,
			OnErrorMessage:     n.OnErrorMessage,
			OnCancelledTitle:   n.OnCancelledTitle,
			OnCancelledMessage: n.OnCancelledMessage,
		}
	}

	return opts
}

type CreateUploadResponse struct {
	ID string `json:"id"`
}

type ListUploadsRequest struct {
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListUploadsResponse struct {
	Uploads    []UploadDTO `json:"uploads"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

type UploadDTO struct {
	ID    string `json:"id"`
	State string `json:"state"`
}
