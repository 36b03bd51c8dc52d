package dispatch

import (
	"fmt"
	"sync"

	"github.com/cuongbtq/bg-uploader/internal/upload/domain"
	"github.com/cuongbtq/bg-uploader/internal/upload/transport"
)

// Factory builds the executor for one job of a given kind
type Factory func(job domain.Job, notification domain.NotificationConfig) (transport.Executor, error)

// Kinds is the static table mapping request kinds to executor factories
type Kinds struct {
	mu        sync.RWMutex
	factories map[domain.RequestKind]Factory
}

// NewKinds creates an empty kind table
func NewKinds() *Kinds {
	return &Kinds{factories: make(map[domain.RequestKind]Factory)}
}

// Register binds a factory to a kind, replacing any previous binding
func (k *Kinds) Register(kind domain.RequestKind, factory Factory) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.factories[kind] = factory
}

// Resolve returns the factory registered for kind
func (k *Kinds) Resolve(kind domain.RequestKind) (Factory, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	f, ok := k.factories[kind]
	return f, ok
}

// DefaultKinds registers the raw body and multipart kinds, both served by exec
func DefaultKinds(exec transport.Executor) *Kinds {
	kinds := NewKinds()

	kinds.Register(domain.KindRawBody, func(job domain.Job, _ domain.NotificationConfig) (transport.Executor, error) {
		if len(job.Files) != 1 {
			return nil, fmt.Errorf("raw body upload takes exactly one file, got %d", len(job.Files))
		}
		if len(job.Parameters) > 0 {
			return nil, fmt.Errorf("raw body upload does not accept form parameters")
		}
		return exec, nil
	})

	kinds.Register(domain.KindMultipart, func(job domain.Job, _ domain.NotificationConfig) (transport.Executor, error) {
		for i, file := range job.Files {
			if file.FieldName == "" {
				return nil, fmt.Errorf("file %d has no form field name", i)
			}
		}
		return exec, nil
	})

	return kinds
}
