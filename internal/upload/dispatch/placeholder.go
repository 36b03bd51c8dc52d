package dispatch

import (
	"sync"

	"github.com/cuongbtq/bg-uploader/internal/upload/registry"
)

// placeholder holds a job's registry slot until its execution is built.
// A cancel that arrives before bind is latched and replayed on the target.
type placeholder struct {
	mu        sync.Mutex
	target    registry.Handle
	cancelled bool
}

func (p *placeholder) Cancel() {
	p.mu.Lock()
	target := p.target
	if target == nil {
		p.cancelled = true
	}
	p.mu.Unlock()

	if target != nil {
		target.Cancel()
	}
}

// bind forwards later cancels to h and replays an earlier one
func (p *placeholder) bind(h registry.Handle) {
	p.mu.Lock()
	p.target = h
	cancelled := p.cancelled
	p.mu.Unlock()

	if cancelled {
		h.Cancel()
	}
}
