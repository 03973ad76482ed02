// Package queue is a small delayed work queue for callbacks that hit a
// transient failure. Redis backs it in production; the in-memory version
// serves single-process setups and tests.
package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrFull = errors.New("queue full")

// Queue holds opaque payloads until their due time. Each payload must be
// unique while queued.
type Queue interface {
	Push(ctx context.Context, payload []byte, due time.Time) error
	// PopDue removes and returns up to max payloads whose due time has passed.
	PopDue(ctx context.Context, now time.Time, max int) ([][]byte, error)
	Len(ctx context.Context) (int64, error)
}

type item struct {
	due     time.Time
	payload []byte
}

// Memory is a mutex-guarded in-process Queue.
type Memory struct {
	mu    sync.Mutex
	items []item
	cap   int
}

// NewMemory returns a queue holding at most capacity payloads (0 = unbounded).
func NewMemory(capacity int) *Memory {
	return &Memory{cap: capacity}
}

func (m *Memory) Push(_ context.Context, payload []byte, due time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cap > 0 && len(m.items) >= m.cap {
		return ErrFull
	}
	m.items = append(m.items, item{due: due, payload: append([]byte(nil), payload...)})
	sort.SliceStable(m.items, func(i, j int) bool { return m.items[i].due.Before(m.items[j].due) })
	return nil
}

func (m *Memory) PopDue(_ context.Context, now time.Time, max int) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	n := 0
	for n < len(m.items) && !m.items[n].due.After(now) && (max <= 0 || n < max) {
		out = append(out, m.items[n].payload)
		n++
	}
	m.items = m.items[n:]
	return out, nil
}

func (m *Memory) Len(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.items)), nil
}
