package memory

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/bg-uploader/internal/scheduler"
)

// DefaultCapacity is the notification buffer used when none is given
const DefaultCapacity = 1024

// Notifier passes job ids to the consumer over a buffered channel
type Notifier struct {
	ids    chan string
	logger *slog.Logger
}

// NewNotifier creates a notifier buffering up to capacity ids
func NewNotifier(capacity int, logger *slog.Logger) *Notifier {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Notifier{
		ids:    make(chan string, capacity),
		logger: logger,
	}
}

// Notify blocks while the buffer is full
func (n *Notifier) Notify(ctx context.Context, jobID string) error {
	select {
	case n.ids <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliveries streams buffered ids until ctx is done. A requeued nack puts
// the id back if there is room; otherwise the row waits for recovery.
func (n *Notifier) Deliveries(ctx context.Context) (<-chan scheduler.Delivery, error) {
	out := make(chan scheduler.Delivery)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case id := <-n.ids:
				d := scheduler.NewDelivery(id, nil, n.requeue(id))
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (n *Notifier) requeue(id string) func(bool) error {
	return func(requeue bool) error {
		if !requeue {
			return nil
		}
		select {
		case n.ids <- id:
		default:
			n.logger.Warn("Notification buffer full, dropping requeued job", slog.String("job_id", id))
		}
		return nil
	}
}
