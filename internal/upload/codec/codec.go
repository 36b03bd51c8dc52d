// Package codec converts upload jobs to and from the payload stored by the
// durable scheduler.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cuongbtq/bg-uploader/internal/upload/domain"
)

// Version is the payload format written by Encode
const Version = 1

type envelope struct {
	Version      int                       `json:"version"`
	Job          domain.Job                `json:"job"`
	Notification domain.NotificationConfig `json:"notification"`
}

// Encode serializes a job together with its notification configuration
func Encode(job domain.Job, notification domain.NotificationConfig) ([]byte, error) {
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}

	data, err := json.Marshal(envelope{
		Version:      Version,
		Job:          job,
		Notification: notification,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}

	return data, nil
}

// Decode parses a payload produced by Encode. Any malformed input is reported
// as domain.ErrSerialization.
func Decode(data []byte) (domain.Job, domain.NotificationConfig, error) {
	var env envelope

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return domain.Job{}, domain.NotificationConfig{}, fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return domain.Job{}, domain.NotificationConfig{}, fmt.Errorf("%w: trailing data after payload", domain.ErrSerialization)
	}

	if env.Version != Version {
		return domain.Job{}, domain.NotificationConfig{}, fmt.Errorf("%w: unsupported payload version %d", domain.ErrSerialization, env.Version)
	}

	if err := env.Job.Validate(); err != nil {
		return domain.Job{}, domain.NotificationConfig{}, fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}

	return env.Job, env.Notification, nil
}
