package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/Lllllllleong/syllabusflow/internal/config"
	"github.com/Lllllllleong/syllabusflow/internal/extract"
	"github.com/Lllllllleong/syllabusflow/internal/gcp"
	"github.com/Lllllllleong/syllabusflow/internal/httpapi"
	"github.com/Lllllllleong/syllabusflow/internal/models"
	"github.com/Lllllllleong/syllabusflow/internal/pipeline"
	"github.com/Lllllllleong/syllabusflow/internal/progress"
)

type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// objectSource reads uploaded objects.
type objectSource interface {
	ReadObject(ctx context.Context, bucket, object string, maxBytes int64) (models.SourceDocument, error)
}

// runStore keeps one status record per run.
type runStore interface {
	// FindActive returns the run already handling or done with fileHash.
	FindActive(ctx context.Context, fileHash string) (string, bool, error)
	Start(ctx context.Context, record models.RunRecord) (runTracker, error)
}

// runTracker mirrors one run's progress and outcome.
type runTracker interface {
	progress.Sink
	SetWorkflowExecution(ctx context.Context, execution string) error
	MarkFailed(ctx context.Context, details string) error
}

type workflowLauncher interface {
	Launch(ctx context.Context, argument any) (string, error)
}

// SyllabusFunction serves both deployment entrypoints: direct HTTP uploads and
// Cloud Storage finalize events. Cloud clients are only created the first time
// an event needs them, so the HTTP path runs without a project.
type SyllabusFunction struct {
	cfg       *config.Config
	generator config.Generator
	runner    httpapi.Runner
	handler   *httpapi.Handler

	cloudOnce sync.Once
	cloudErr  error
	source    objectSource
	runs      runStore
	launcher  workflowLauncher
	closers   []func() error
}

func NewSyllabusFunction(ctx context.Context) (*SyllabusFunction, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := slog.Default()
	generator, err := cfg.NewGenerator(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	orch := pipeline.New(extract.NewEngine(logger), generator, cfg.OrchestratorConfig(), logger)

	f := &SyllabusFunction{
		cfg:       cfg,
		generator: generator,
		runner:    orch,
		handler: httpapi.NewHandler(orch, httpapi.Limits{
			MaxUploadBytes: cfg.Pipeline.MaxUploadBytes,
			MaxLessons:     cfg.Pipeline.MaxTargetLessons,
		}, logger),
	}
	slog.Info("Syllabus generator initialized.", "provider", cfg.Generation.Provider, "workflowId", cfg.Cloud.WorkflowID)
	return f, nil
}

// ServeHTTP handles a multipart upload.
func (f *SyllabusFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.handler.GenerateSyllabus(w, r)
}

func (f *SyllabusFunction) initCloud(ctx context.Context) error {
	if f.cfg.Cloud.ProjectID == "" {
		return fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, f.cfg.Cloud.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to create firestore client: %w", err)
	}
	f.closers = append(f.closers, firestoreClient.Close)
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create Storage client: %w", err)
	}
	f.closers = append(f.closers, storageClient.Close)

	f.source = gcsSource{client: storageClient}
	f.runs = &firestoreRuns{client: firestoreClient, collection: f.cfg.Cloud.FirestoreCollection}

	if f.cfg.Cloud.WorkflowID != "" {
		launcher, err := gcp.NewWorkflowLauncher(ctx, f.cfg.Cloud.ProjectID, f.cfg.Cloud.WorkflowLocation, f.cfg.Cloud.WorkflowID)
		if err != nil {
			return err
		}
		f.closers = append(f.closers, launcher.Close)
		f.launcher = launcher
	}
	return nil
}

// ProcessGCSEvent generates a syllabus for a newly uploaded object, mirrors
// progress into Firestore and hands the result to the configured workflow.
// Errors are returned only when redelivering the event could succeed.
func (f *SyllabusFunction) ProcessGCSEvent(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new GCS object.")

	f.cloudOnce.Do(func() { f.cloudErr = f.initCloud(context.Background()) })
	if f.cloudErr != nil {
		logCtx.Error("Cloud clients unavailable", "error", f.cloudErr)
		return f.cloudErr
	}

	doc, err := f.source.ReadObject(ctx, e.Bucket, e.Name, f.cfg.Pipeline.MaxUploadBytes)
	if err != nil {
		logCtx.Error("Failed to download source document", "error", err)
		if models.KindOf(err) != "" {
			// Oversized or unreadable objects will not get better on retry.
			return nil
		}
		return err
	}

	fileHash := contentHash(doc.Data)
	logCtx = logCtx.With("fileHash", fileHash)

	existingID, isDuplicate, err := f.runs.FindActive(ctx, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if isDuplicate {
		logCtx.Info("Duplicate file detected. Skipping.", "existingRunId", existingID)
		return nil
	}

	runID := uuid.NewString()
	source := gcsURI(e.Bucket, e.Name)
	logCtx = logCtx.With("runId", runID)

	tracker, err := f.runs.Start(ctx, models.RunRecord{
		RunID:            runID,
		OriginalFilename: e.Name,
		Source:           source,
		FileHash:         fileHash,
		MediaType:        string(doc.MediaType),
	})
	if err != nil {
		logCtx.Error("Failed to create run document in Firestore", "error", err)
		return fmt.Errorf("failed to create run document: %w", err)
	}
	logCtx.Info("Created run document in Firestore.")

	async := progress.NewAsync(tracker, 0, logCtx)
	res, err := f.runner.Run(ctx, doc, pipeline.Options{RunID: runID, Sink: async})
	async.Close()
	if err != nil {
		// The run record already says FAILED.
		if shouldRetry(err) {
			return err
		}
		return nil
	}

	if f.launcher == nil {
		logCtx.Info("No workflow configured. Run complete.")
		return nil
	}
	return f.triggerWorkflow(ctx, logCtx, tracker, workflowArgument(res, source))
}

func (f *SyllabusFunction) triggerWorkflow(ctx context.Context, logCtx *slog.Logger, tracker runTracker, arg models.SyllabusWorkflowArgument) error {
	logCtx.Info("Triggering workflow.")
	execution, err := f.launcher.Launch(ctx, arg)
	if err != nil {
		return handleError(ctx, logCtx, tracker, "failed to trigger workflow execution", err)
	}
	if err := tracker.SetWorkflowExecution(ctx, execution); err != nil {
		logCtx.Warn("Failed to record workflow execution.", "execution", execution, "error", err)
	}
	logCtx.Info("Hand-off to workflow complete.", "execution", execution)
	return nil
}

func handleError(ctx context.Context, logCtx *slog.Logger, tracker runTracker, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if err := tracker.MarkFailed(ctx, fullError); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s", fullError)
}

// Close releases every client the function created.
func (f *SyllabusFunction) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(f.generator.Close())
	for _, closeFn := range f.closers {
		keep(closeFn())
	}
	return firstErr
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func gcsURI(bucket, object string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, object)
}

// shouldRetry reports whether redelivering the event could succeed.
func shouldRetry(err error) bool {
	switch models.KindOf(err) {
	case models.KindRateLimited, models.KindTimeout, models.KindProvider:
		return true
	}
	return false
}

func workflowArgument(res *pipeline.Result, source string) models.SyllabusWorkflowArgument {
	arg := models.SyllabusWorkflowArgument{RunID: res.RunID, Source: source}
	if res.Syllabus != nil {
		arg.Syllabus = *res.Syllabus
	}
	return arg
}
