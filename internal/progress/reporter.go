// Package progress delivers pipeline progress events to optional observers.
package progress

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Lllllllleong/syllabusflow/internal/models"
)

// Sink receives progress events. Implementations should return quickly;
// slow transports should be wrapped with Async.
type Sink interface {
	Emit(event models.ProgressEvent)
}

// Func adapts a plain function to a Sink.
type Func func(models.ProgressEvent)

func (f Func) Emit(event models.ProgressEvent) { f(event) }

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(models.ProgressEvent) {}

// Reporter forwards events to an optional sink. A nil sink makes Emit a no-op,
// and a panicking sink is recovered and logged so it never aborts a run.
type Reporter struct {
	sink   Sink
	logger *slog.Logger
}

func NewReporter(sink Sink, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{sink: sink, logger: logger}
}

func (r *Reporter) Emit(event models.ProgressEvent) {
	if r == nil || r.sink == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Progress sink failed; event dropped.", "stage", event.Stage, "percent", event.Percent, "panic", fmt.Sprint(rec))
		}
	}()
	r.sink.Emit(event)
}

// Multi fans events out to several sinks. A failing sink does not prevent
// delivery to the others.
func Multi(logger *slog.Logger, sinks ...Sink) Sink {
	reporters := make([]*Reporter, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			reporters = append(reporters, NewReporter(s, logger))
		}
	}
	return Func(func(e models.ProgressEvent) {
		for _, r := range reporters {
			r.Emit(e)
		}
	})
}

// Recorder keeps every event it receives. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (r *Recorder) Emit(event models.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []models.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ProgressEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Last returns the most recent event and whether one exists.
func (r *Recorder) Last() (models.ProgressEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return models.ProgressEvent{}, false
	}
	return r.events[len(r.events)-1], true
}
