package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/Lllllllleong/syllabusflow/internal/models"
)

// SSE writes events as Server-Sent Events frames:
//
//	event: progress
//	data: {"stage":"processing","percent":25,...}
//
// Terminal events use the event names "completed" and "error".
type SSE struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	logger  *slog.Logger
	failed  bool
}

// NewSSE prepares w for streaming and writes the SSE response headers when w
// is an http.ResponseWriter.
func NewSSE(w io.Writer, logger *slog.Logger) *SSE {
	if logger == nil {
		logger = slog.Default()
	}
	if rw, ok := w.(http.ResponseWriter); ok {
		h := rw.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		rw.WriteHeader(http.StatusOK)
	}
	flusher, _ := w.(http.Flusher)
	return &SSE{w: w, flusher: flusher, logger: logger}
}

func (s *SSE) Emit(event models.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to encode progress event", "error", err)
		return
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventName(event.Stage), data); err != nil {
		// The client went away; stop writing but let the run finish.
		s.failed = true
		s.logger.Warn("SSE client disconnected; further events dropped.", "error", err)
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func eventName(stage models.Stage) string {
	switch stage {
	case models.StageCompleted:
		return "completed"
	case models.StageError:
		return "error"
	}
	return "progress"
}
