package pipeline

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Lllllllleong/syllabusflow/internal/models"
	"github.com/Lllllllleong/syllabusflow/internal/progress"
)

// transitions lists the legal status changes of a run.
var transitions = map[models.Status][]models.Status{
	models.StatusIdle:       {models.StatusUploading, models.StatusError},
	models.StatusUploading:  {models.StatusExtracting, models.StatusError},
	models.StatusExtracting: {models.StatusGenerating, models.StatusError},
	models.StatusGenerating: {models.StatusSuccess, models.StatusError},
}

// pipelineRun is the state of one invocation. It is created when Run starts
// and only ever touched by that invocation.
type pipelineRun struct {
	id       string
	document string
	reporter *progress.Reporter
	logger   *slog.Logger

	mu          sync.Mutex
	status      models.Status
	lastPercent int
	finished    bool
	extraction  models.ExtractionResult
	syllabus    *models.SyllabusSpec
	err         error
	startedAt   time.Time
	finishedAt  time.Time
}

func newPipelineRun(id string, doc models.SourceDocument, sink progress.Sink, logger *slog.Logger) *pipelineRun {
	logCtx := logger.With("runId", id, "document", doc.Name, "mediaType", doc.MediaType)
	return &pipelineRun{
		id:        id,
		document:  doc.Name,
		reporter:  progress.NewReporter(sink, logCtx),
		logger:    logCtx,
		status:    models.StatusIdle,
		startedAt: time.Now(),
	}
}

func (r *pipelineRun) transition(to models.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, allowed := range transitions[r.status] {
		if allowed == to {
			r.logger.Info("Run status changed.", "from", r.status, "to", to)
			r.status = to
			return nil
		}
	}
	return fmt.Errorf("illegal run transition %s -> %s", r.status, to)
}

func (r *pipelineRun) currentStatus() models.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// emit forwards an event, holding percent non-decreasing and suppressing
// anything after the terminal event.
func (r *pipelineRun) emit(event models.ProgressEvent) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	if event.Percent < r.lastPercent {
		event.Percent = r.lastPercent
	}
	if event.Percent > 100 {
		event.Percent = 100
	}
	r.lastPercent = event.Percent
	if event.Stage == models.StageCompleted || event.Stage == models.StageError {
		r.finished = true
	}
	r.mu.Unlock()

	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	r.reporter.Emit(event)
}

func (r *pipelineRun) progress(percent int, message string) {
	r.emit(models.ProgressEvent{Stage: models.StageProcessing, Percent: percent, Message: message})
}

func (r *pipelineRun) currentPercent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPercent
}

// fail moves the run to Error and emits the terminal event carrying the
// error kind and a readable message.
func (r *pipelineRun) fail(err error) *Result {
	r.mu.Lock()
	r.status = models.StatusError
	r.err = err
	r.finishedAt = time.Now()
	r.mu.Unlock()

	r.logger.Error("Syllabus generation failed", "error", err, "kind", models.KindOf(err))
	r.emit(models.ProgressEvent{
		Stage:     models.StageError,
		Percent:   r.currentPercent(),
		Message:   models.UserMessage(err),
		ErrorKind: models.KindOf(err),
	})
	return r.result()
}

func (r *pipelineRun) succeed(spec models.SyllabusSpec) (*Result, error) {
	if err := r.transition(models.StatusSuccess); err != nil {
		return r.fail(err), err
	}
	r.mu.Lock()
	r.syllabus = &spec
	r.finishedAt = time.Now()
	r.mu.Unlock()

	r.logger.Info("Syllabus generated.", "modules", len(spec.Modules), "lessons", spec.LessonCount(), "elapsed", time.Since(r.startedAt).String())
	r.emit(models.ProgressEvent{
		Stage:    models.StageCompleted,
		Percent:  100,
		Message:  fmt.Sprintf("Syllabus ready: %d modules, %d lessons", len(spec.Modules), spec.LessonCount()),
		Syllabus: &spec,
	})
	return r.result(), nil
}

// Result is the immutable outcome of one run.
type Result struct {
	RunID      string
	Status     models.Status
	Extraction models.ExtractionResult
	Syllabus   *models.SyllabusSpec
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r *pipelineRun) result() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Result{
		RunID:      r.id,
		Status:     r.status,
		Extraction: r.extraction,
		Syllabus:   r.syllabus,
		Err:        r.err,
		StartedAt:  r.startedAt,
		FinishedAt: r.finishedAt,
	}
}
