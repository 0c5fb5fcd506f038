package queue

import (
	"context"
	"sync"
)

// Memory is an unbounded in-process FIFO. Publish never blocks.
type Memory struct {
	mu      sync.Mutex
	pending []string
	notify  chan struct{}
	closed  bool
	done    chan struct{}
}

func NewMemory() *Memory {
	return &Memory{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (m *Memory) Publish(_ context.Context, jobID string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.pending = append(m.pending, jobID)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Memory) pop() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return "", false
	}
	id := m.pending[0]
	m.pending[0] = ""
	m.pending = m.pending[1:]
	return id, true
}

// pushFront requeues id ahead of everything pending and wakes the consumer.
func (m *Memory) pushFront(id string) {
	m.mu.Lock()
	m.pending = append([]string{id}, m.pending...)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Consume hands out ids one at a time; the next id is taken off the queue
// only once the previous delivery has been received.
func (m *Memory) Consume(ctx context.Context) (<-chan Delivery, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			id, ok := m.pop()
			if !ok {
				select {
				case <-ctx.Done():
					return
				case <-m.done:
					return
				case <-m.notify:
					continue
				}
			}

			d := NewDelivery(id, nil, func(requeue bool) error {
				if requeue {
					m.pushFront(id)
				}
				return nil
			})
			select {
			case out <- d:
			case <-ctx.Done():
				m.pushFront(id)
				return
			case <-m.done:
				m.pushFront(id)
				return
			}
		}
	}()
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}
