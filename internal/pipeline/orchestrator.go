// Package pipeline sequences extraction, prompting, generation and parsing
// into one syllabus-generation run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/syllabusflow/internal/extract"
	"github.com/Lllllllleong/syllabusflow/internal/generate"
	"github.com/Lllllllleong/syllabusflow/internal/models"
	"github.com/Lllllllleong/syllabusflow/internal/parse"
	"github.com/Lllllllleong/syllabusflow/internal/progress"
	"github.com/Lllllllleong/syllabusflow/internal/prompt"
)

// Progress windows of the overall 0-100 budget.
const (
	extractionEnd   = 50
	generationStart = 50
	generationCap   = 89
	generationEnd   = 90
)

// DefaultTargetLessons is used when a run does not ask for a lesson count.
const DefaultTargetLessons = 8

// DefaultMaxTargetLessons caps the lesson count a run may ask for.
const DefaultMaxTargetLessons = 100

// Extractor is the subset of extract.Engine the orchestrator needs.
type Extractor interface {
	Extract(ctx context.Context, doc models.SourceDocument, onProgress extract.OnProgress) (models.ExtractionResult, error)
}

// Config holds the orchestrator's tunables.
type Config struct {
	MaxUploadBytes       int64
	MaxPromptChars       int
	DefaultTargetLessons int
	MaxTargetLessons     int
	// GenerationTick is the interval of the synthetic progress shown while
	// waiting for the model. Zero disables it.
	GenerationTick time.Duration
}

// Orchestrator runs documents through the pipeline. It holds no per-run state
// and is safe for concurrent use.
type Orchestrator struct {
	extractor Extractor
	generator generate.Generator
	builder   prompt.Builder
	cfg       Config
	logger    *slog.Logger
}

func New(extractor Extractor, generator generate.Generator, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultTargetLessons <= 0 {
		cfg.DefaultTargetLessons = DefaultTargetLessons
	}
	if cfg.MaxTargetLessons <= 0 {
		cfg.MaxTargetLessons = DefaultMaxTargetLessons
	}
	return &Orchestrator{
		extractor: extractor,
		generator: generator,
		builder:   prompt.Builder{MaxSourceChars: cfg.MaxPromptChars},
		cfg:       cfg,
		logger:    logger,
	}
}

// Options are per-run settings.
type Options struct {
	// TargetLessons is the requested class count; <= 0 uses the configured default.
	TargetLessons int
	// Sink observes progress; nil runs without an observer.
	Sink progress.Sink
	// RunID overrides the generated run identifier.
	RunID string
}

// Run processes one document. The returned Result is never nil; on failure
// its Status is StatusError and the typed error is also returned.
func (o *Orchestrator) Run(ctx context.Context, doc models.SourceDocument, opts Options) (*Result, error) {
	id := opts.RunID
	if id == "" {
		id = uuid.NewString()
	}
	run := newPipelineRun(id, doc, opts.Sink, o.logger)

	if err := doc.Validate(o.cfg.MaxUploadBytes); err != nil {
		return run.fail(err), err
	}
	if opts.TargetLessons > o.cfg.MaxTargetLessons {
		err := models.InputError(fmt.Sprintf("at most %d lessons can be requested, got %d", o.cfg.MaxTargetLessons, opts.TargetLessons))
		return run.fail(err), err
	}
	if err := run.transition(models.StatusUploading); err != nil {
		return run.fail(err), err
	}
	run.emit(models.ProgressEvent{Stage: models.StageStarting, Percent: 0, Message: fmt.Sprintf("Received %s", doc.Name)})

	if err := checkCancelled(ctx); err != nil {
		return run.fail(err), err
	}
	if err := run.transition(models.StatusExtracting); err != nil {
		return run.fail(err), err
	}
	extraction, err := o.extractor.Extract(ctx, doc, scaleExtraction(run))
	if err != nil {
		err = normalize(ctx, err, models.KindUnreadableInput)
		return run.fail(err), err
	}
	run.mu.Lock()
	run.extraction = extraction
	run.mu.Unlock()
	run.progress(extractionEnd, fmt.Sprintf("Extracted %d characters", extraction.CharacterCount))

	if err := checkCancelled(ctx); err != nil {
		return run.fail(err), err
	}
	if err := run.transition(models.StatusGenerating); err != nil {
		return run.fail(err), err
	}
	targetLessons := opts.TargetLessons
	if targetLessons <= 0 {
		targetLessons = o.cfg.DefaultTargetLessons
	}
	plan := prompt.Plan(targetLessons)
	run.logger.Info("Requesting syllabus from model.", "targetLessons", plan.TargetLessons, "modules", plan.ModuleCount, "lessonsPerModule", plan.LessonsPerModule)
	promptText := o.builder.Build(extraction.Text, targetLessons)

	raw, err := o.generate(ctx, run, promptText)
	if err != nil {
		err = normalize(ctx, err, models.KindProvider)
		return run.fail(err), err
	}
	run.progress(generationEnd, "Validating syllabus")

	if err := checkCancelled(ctx); err != nil {
		return run.fail(err), err
	}
	spec, err := parse.Parse(raw)
	if err != nil {
		run.logger.Warn("Model output rejected.", "error", err, "responseChars", len(raw))
		return run.fail(err), err
	}
	return run.succeed(spec)
}

// generate calls the model while advancing indeterminate progress through
// the generation window.
func (o *Orchestrator) generate(ctx context.Context, run *pipelineRun, promptText string) (string, error) {
	run.progress(generationStart, "Generating syllabus")

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		text, err := o.generator.Generate(ctx, promptText)
		done <- outcome{text, err}
	}()

	var tick <-chan time.Time
	if o.cfg.GenerationTick > 0 {
		ticker := time.NewTicker(o.cfg.GenerationTick)
		defer ticker.Stop()
		tick = ticker.C
	}
	pct := generationStart
	for {
		select {
		case out := <-done:
			return out.text, out.err
		case <-tick:
			if pct < generationCap {
				pct += max(1, (generationCap-pct)/6)
				run.progress(pct, "Generating syllabus")
			}
		case <-ctx.Done():
			return "", models.CancelledError(ctx.Err())
		}
	}
}

// scaleExtraction maps extractor events into the extraction window. The
// extractor's own terminal events are not forwarded: completion becomes
// processing at 50 and failures are reported once by the orchestrator.
func scaleExtraction(run *pipelineRun) extract.OnProgress {
	return func(e models.ProgressEvent) {
		if e.Stage == models.StageError {
			return
		}
		e.Stage = models.StageProcessing
		e.Percent = e.Percent * extractionEnd / 100
		run.emit(e)
	}
}

func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return models.CancelledError(err)
	}
	return nil
}

// normalize makes sure every failure carries a taxonomy kind.
func normalize(ctx context.Context, err error, fallback models.ErrorKind) error {
	if models.KindOf(err) != "" {
		return err
	}
	if ctx.Err() != nil {
		return models.CancelledError(err)
	}
	return &models.Error{Kind: fallback, Message: "stage failed", Err: err}
}
