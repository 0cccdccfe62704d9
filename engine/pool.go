package engine

import (
	iface "PushUpCounter/interface"
	"PushUpCounter/logger"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNoIdleWorker = errors.New("no available workers")

const drainPoll = 10 * time.Millisecond

type worker struct {
	mu      sync.Mutex
	State   int
	backend iface.Backend
}

// Pool hands out loaded backends, one caller at a time per backend.
type Pool struct {
	seqMu    sync.RWMutex
	workers  map[string]*worker
	free     chan string
	draining bool
	closed   bool
}

// NewPool builds count backends with factory. Backends already built are
// destroyed if a later one fails.
func NewPool(count int, factory func() (iface.Backend, error)) (*Pool, error) {
	if count <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", count)
	}
	p := &Pool{
		workers: make(map[string]*worker, count),
		free:    make(chan string, count),
	}
	for i := 0; i < count; i++ {
		b, err := factory()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("worker %d: %w", i, err)
		}
		id := uuid.NewString()
		p.workers[id] = &worker{State: IDLE, backend: b}
		p.free <- id
		logger.Log().Info("Pose worker created", zap.String("ID", id), zap.Int("index", i))
	}
	return p, nil
}

var errPoolClosed = errors.New("pool closed")

func (p *Pool) take(id string, ok bool) (string, iface.Backend, error) {
	if !ok {
		return "", nil, errPoolClosed
	}
	p.seqMu.RLock()
	defer p.seqMu.RUnlock()
	w, exists := p.workers[id]
	if !exists {
		// buffered ids can outlive Close
		return "", nil, errPoolClosed
	}
	if p.draining {
		// hand the id back so Shutdown sees the worker idle
		p.free <- id
		return "", nil, errPoolClosed
	}
	w.mu.Lock()
	w.State = BUSY
	w.mu.Unlock()
	return id, w.backend, nil
}

// Acquire blocks until a backend is idle or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (string, iface.Backend, error) {
	select {
	case id, ok := <-p.free:
		return p.take(id, ok)
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

// TryAcquire returns ErrNoIdleWorker instead of waiting.
func (p *Pool) TryAcquire() (string, iface.Backend, error) {
	select {
	case id, ok := <-p.free:
		return p.take(id, ok)
	default:
		return "", nil, ErrNoIdleWorker
	}
}

func (p *Pool) Release(id string) {
	p.seqMu.RLock()
	defer p.seqMu.RUnlock()
	w, ok := p.workers[id]
	if !ok || p.closed {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.State != BUSY {
		return
	}
	w.State = IDLE
	// never blocks: the buffer holds every id
	p.free <- id
}

// States reports IDLE/BUSY per worker id.
func (p *Pool) States() map[string]int {
	p.seqMu.RLock()
	defer p.seqMu.RUnlock()
	out := make(map[string]int, len(p.workers))
	for id, w := range p.workers {
		w.mu.Lock()
		out[id] = w.State
		w.mu.Unlock()
	}
	return out
}

func (p *Pool) Size() int {
	p.seqMu.RLock()
	defer p.seqMu.RUnlock()
	return len(p.workers)
}

func (p *Pool) busy() int {
	n := 0
	for _, state := range p.States() {
		if state == BUSY {
			n++
		}
	}
	return n
}

// Shutdown stops handing out backends, waits until every held backend is
// released or ctx is done, then destroys the idle ones. Backends still held
// when ctx expires are left alone and ctx's error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.seqMu.Lock()
	if p.closed {
		p.seqMu.Unlock()
		return nil
	}
	p.draining = true
	p.seqMu.Unlock()

	var err error
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
wait:
	for p.busy() > 0 {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break wait
		case <-ticker.C:
		}
	}

	p.seqMu.Lock()
	defer p.seqMu.Unlock()
	p.closed = true
	for id, w := range p.workers {
		w.mu.Lock()
		inUse := w.State == BUSY
		w.mu.Unlock()
		if inUse {
			logger.Log().Warn("Pose worker still busy, not destroyed", zap.String("ID", id))
			continue
		}
		w.backend.Destroy()
		delete(p.workers, id)
	}
	close(p.free)
	return err
}

// Close is Shutdown without a deadline.
func (p *Pool) Close() {
	_ = p.Shutdown(context.Background())
}
