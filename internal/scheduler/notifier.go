package scheduler

import "context"

// Delivery is a notification that a job is ready to be dispatched
type Delivery struct {
	JobID string

	ack  func() error
	nack func(requeue bool) error
}

// NewDelivery builds a delivery with transport specific acknowledgement
func NewDelivery(jobID string, ack func() error, nack func(requeue bool) error) Delivery {
	return Delivery{JobID: jobID, ack: ack, nack: nack}
}

// Ack confirms the delivery was handled
func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Nack rejects the delivery, optionally asking for redelivery
func (d Delivery) Nack(requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(requeue)
}

// Notifier wakes the scheduler's consumer for stored jobs
type Notifier interface {
	Notify(ctx context.Context, jobID string) error
	// Deliveries streams notifications until ctx is done
	Deliveries(ctx context.Context) (<-chan Delivery, error)
}
