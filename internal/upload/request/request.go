// Package request turns caller options into a job descriptor and its
// notification configuration, applying defaults.
package request

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/cuongbtq/bg-uploader/internal/upload/domain"
)

// DefaultMaxRetries is used when the caller does not set a retry budget
const DefaultMaxRetries = 2

// Options describes one upload as submitted by a caller
type Options struct {
	URL            string
	Path           string
	Type           string
	Field          string
	Files          []FileOptions
	Method         string
	MaxRetries     *int
	CustomUploadID string
	Headers        map[string]string
	Parameters     []domain.Param
	Notification   *NotificationOptions
}

// FileOptions describes an extra file for multipart uploads
type FileOptions struct {
	Path        string
	Field       string
	Name        string
	ContentType string
}

// NotificationOptions holds per phase titles and messages
type NotificationOptions struct {
	Enabled            *bool
	Channel            string
	EnableRingTone     bool
	AutoClear          bool
	OnProgressTitle    string
	OnProgressMessage  string
	OnCompleteTitle    string
	OnCompleteMessage  string
	OnErrorTitle       string
	OnErrorMessage     string
	OnCancelledTitle   string
	OnCancelledMessage string
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidJob, fmt.Sprintf(format, args...))
}

// Build validates opts and returns the job with defaults applied
func Build(opts Options) (domain.Job, domain.NotificationConfig, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return domain.Job{}, domain.NotificationConfig{}, invalid("missing 'url' field")
	}
	if strings.TrimSpace(opts.Path) == "" && len(opts.Files) == 0 {
		return domain.Job{}, domain.NotificationConfig{}, invalid("missing 'path' field")
	}

	kind, err := parseKind(opts.Type)
	if err != nil {
		return domain.Job{}, domain.NotificationConfig{}, err
	}

	files, err := buildFiles(opts, kind)
	if err != nil {
		return domain.Job{}, domain.NotificationConfig{}, err
	}

	if len(opts.Parameters) > 0 && kind != domain.KindMultipart {
		return domain.Job{}, domain.NotificationConfig{}, invalid("parameters supported only in multipart type")
	}

	maxRetries := DefaultMaxRetries
	if opts.MaxRetries != nil {
		maxRetries = *opts.MaxRetries
	}

	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodPost
	}

	id := strings.TrimSpace(opts.CustomUploadID)
	if id == "" {
		id = uuid.NewString()
	}

	job := domain.Job{
		ID:         id,
		URL:        opts.URL,
		Method:     method,
		Kind:       kind,
		Files:      files,
		Headers:    opts.Headers,
		Parameters: opts.Parameters,
		MaxRetries: maxRetries,
	}
	if err := job.Validate(); err != nil {
		return domain.Job{}, domain.NotificationConfig{}, err
	}

	return job, buildNotification(opts.Notification), nil
}

func parseKind(t string) (domain.RequestKind, error) {
	switch domain.RequestKind(strings.ToLower(strings.TrimSpace(t))) {
	case "", domain.KindRawBody:
		return domain.KindRawBody, nil
	case domain.KindMultipart:
		return domain.KindMultipart, nil
	default:
		return "", invalid("type should be raw or multipart, got %q", t)
	}
}

func buildFiles(opts Options, kind domain.RequestKind) ([]domain.File, error) {
	var files []domain.File

	if strings.TrimSpace(opts.Path) != "" {
		files = append(files, domain.File{Path: opts.Path, FieldName: opts.Field})
	}
	for _, f := range opts.Files {
		field := f.Field
		if field == "" {
			field = opts.Field
		}
		files = append(files, domain.File{
			Path:        f.Path,
			FieldName:   field,
			RemoteName:  f.Name,
			ContentType: f.ContentType,
		})
	}

	switch kind {
	case domain.KindRawBody:
		if len(files) != 1 {
			return nil, invalid("raw type uploads exactly one file, got %d", len(files))
		}
		files[0].FieldName = ""
	case domain.KindMultipart:
		for i, f := range files {
			if strings.TrimSpace(f.FieldName) == "" {
				return nil, invalid("field is required for multipart type (file %d)", i)
			}
		}
	}

	return files, nil
}

func buildNotification(opts *NotificationOptions) domain.NotificationConfig {
	if opts == nil {
		opts = &NotificationOptions{}
	}
	if opts.Enabled != nil && !*opts.Enabled {
		return domain.NotificationConfig{Enabled: false}
	}

	channel := opts.Channel
	if channel == "" {
		channel = domain.DefaultNotificationChannel
	}

	return domain.NotificationConfig{
		Enabled:         true,
		ChannelID:       channel,
		RingToneEnabled: opts.EnableRingTone,
		Progress:        domain.StatusConfig{Title: opts.OnProgressTitle, Message: opts.OnProgressMessage},
		Success:         domain.StatusConfig{Title: opts.OnCompleteTitle, Message: opts.OnCompleteMessage, AutoClear: opts.AutoClear},
		Error:           domain.StatusConfig{Title: opts.OnErrorTitle, Message: opts.OnErrorMessage},
		Cancelled:       domain.StatusConfig{Title: opts.OnCancelledTitle, Message: opts.OnCancelledMessage},
	}
}
