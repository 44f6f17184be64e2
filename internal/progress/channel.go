package progress

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Lllllllleong/syllabusflow/internal/models"
)

// Channel pushes events into a Go channel without blocking. When the
// channel is full the event is dropped and logged.
type Channel struct {
	ch     chan<- models.ProgressEvent
	logger *slog.Logger
}

func NewChannel(ch chan<- models.ProgressEvent, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{ch: ch, logger: logger}
}

func (c *Channel) Emit(event models.ProgressEvent) {
	if c.ch == nil {
		return
	}
	select {
	case c.ch <- event:
	default:
		c.logger.Warn("Event channel full, dropping event.", "stage", event.Stage, "percent", event.Percent)
	}
}

// Async decouples a slow sink from the pipeline: events are queued and
// delivered in order by a single goroutine. Close flushes the queue.
type Async struct {
	queue  chan models.ProgressEvent
	inner  *Reporter
	logger *slog.Logger
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewAsync(sink Sink, buffer int, logger *slog.Logger) *Async {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 64
	}
	a := &Async{
		queue:  make(chan models.ProgressEvent, buffer),
		inner:  NewReporter(sink, logger),
		logger: logger,
		done:   make(chan struct{}),
	}
	go a.drain()
	return a
}

func (a *Async) drain() {
	defer close(a.done)
	for e := range a.queue {
		a.inner.Emit(e)
	}
}

func (a *Async) Emit(event models.ProgressEvent) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	if terminal(event.Stage) {
		select {
		case a.queue <- event:
		case <-time.After(terminalWait):
			a.logger.Error("Progress queue stuck, dropping terminal event.", "stage", event.Stage)
		}
		return
	}
	select {
	case a.queue <- event:
	default:
		a.logger.Warn("Progress queue full, dropping event.", "stage", event.Stage, "percent", event.Percent)
	}
}

// terminalWait bounds how long a completed or error event waits for queue space.
const terminalWait = time.Second

func terminal(s models.Stage) bool {
	return s == models.StageCompleted || s == models.StageError
}

// Close stops accepting events and waits until queued events are delivered.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}
