// Package queue carries job ids from the API to the single worker.
package queue

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("queue closed")

type Delivery struct {
	JobID string
	ack   func() error
	nack  func(requeue bool) error
}

func NewDelivery(jobID string, ack func() error, nack func(requeue bool) error) Delivery {
	return Delivery{JobID: jobID, ack: ack, nack: nack}
}

func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

func (d Delivery) Nack(requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(requeue)
}

// Broker is a FIFO of job ids. Consume is called once, by the worker; the
// returned channel is closed when ctx ends or the broker shuts down.
type Broker interface {
	Publish(ctx context.Context, jobID string) error
	Consume(ctx context.Context) (<-chan Delivery, error)
	Close() error
}
