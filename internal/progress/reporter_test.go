package progress

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/syllabusflow/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReporterWithoutSinkIsNoop(t *testing.T) {
	var r *Reporter
	assert.NotPanics(t, func() { r.Emit(models.ProgressEvent{Stage: models.StageStarting}) })

	r = NewReporter(nil, quietLogger())
	assert.NotPanics(t, func() { r.Emit(models.ProgressEvent{Stage: models.StageStarting}) })
}

func TestReporterSwallowsPanickingSink(t *testing.T) {
	r := NewReporter(Func(func(models.ProgressEvent) { panic("observer broke") }), quietLogger())
	assert.NotPanics(t, func() { r.Emit(models.ProgressEvent{Stage: models.StageProcessing, Percent: 10}) })
}

func TestReporterStampsTime(t *testing.T) {
	rec := &Recorder{}
	NewReporter(rec, quietLogger()).Emit(models.ProgressEvent{Stage: models.StageStarting})
	last, ok := rec.Last()
	require.True(t, ok)
	assert.False(t, last.Time.IsZero())
}

func TestMultiDeliversPastBrokenSink(t *testing.T) {
	rec := &Recorder{}
	sink := Multi(quietLogger(), Func(func(models.ProgressEvent) { panic("x") }), nil, rec)
	sink.Emit(models.ProgressEvent{Stage: models.StageProcessing, Percent: 40})
	assert.Len(t, rec.Events(), 1)
}

func TestChannelDropsWhenFull(t *testing.T) {
	ch := make(chan models.ProgressEvent, 1)
	c := NewChannel(ch, quietLogger())

	c.Emit(models.ProgressEvent{Percent: 1})
	c.Emit(models.ProgressEvent{Percent: 2})

	require.Len(t, ch, 1)
	assert.Equal(t, 1, (<-ch).Percent)
	assert.NotPanics(t, func() { NewChannel(nil, quietLogger()).Emit(models.ProgressEvent{}) })
}

func TestAsyncFlushesInOrder(t *testing.T) {
	rec := &Recorder{}
	a := NewAsync(Func(func(e models.ProgressEvent) {
		time.Sleep(time.Millisecond)
		rec.Emit(e)
	}), 16, quietLogger())

	for i := 0; i <= 10; i++ {
		a.Emit(models.ProgressEvent{Stage: models.StageProcessing, Percent: i * 10})
	}
	a.Emit(models.ProgressEvent{Stage: models.StageCompleted, Percent: 100})
	a.Close()
	a.Emit(models.ProgressEvent{Stage: models.StageProcessing, Percent: 100})

	events := rec.Events()
	require.Len(t, events, 12)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Percent, events[i-1].Percent)
	}
	assert.Equal(t, models.StageCompleted, events[len(events)-1].Stage)
}

func TestSSEFrames(t *testing.T) {
	w := httptest.NewRecorder()
	s := NewSSE(w, quietLogger())

	s.Emit(models.ProgressEvent{Stage: models.StageProcessing, Percent: 25, Message: "Reading page 1 of 4"})
	s.Emit(models.ProgressEvent{Stage: models.StageError, Percent: 25, Message: "nope", ErrorKind: models.KindRateLimited})

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	frames := strings.Split(strings.TrimSpace(body), "\n\n")
	require.Len(t, frames, 2)
	assert.True(t, strings.HasPrefix(frames[0], "event: progress\ndata: {"))
	assert.Contains(t, frames[0], `"percent":25`)
	assert.True(t, strings.HasPrefix(frames[1], "event: error\n"))
	assert.Contains(t, frames[1], `"errorKind":"rate_limited"`)
	assert.True(t, w.Flushed)
}

func TestRecordUpdates(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	updates := recordUpdates(models.ProgressEvent{Stage: models.StageError, Percent: 60, Message: "m", ErrorKind: models.KindTimeout, Time: at})

	got := map[string]interface{}{}
	for _, u := range updates {
		got[u.Path] = u.Value
	}
	assert.Equal(t, "FAILED", got["status"])
	assert.Equal(t, "error", got["stage"])
	assert.Equal(t, 60, got["percent"])
	assert.Equal(t, "timeout", got["errorKind"])
	assert.Equal(t, at, got["updatedAt"])

	updates = recordUpdates(models.ProgressEvent{Stage: models.StageProcessing, Percent: 10})
	for _, u := range updates {
		assert.NotEqual(t, "errorKind", u.Path)
	}
}
