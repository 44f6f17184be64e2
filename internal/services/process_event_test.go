package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/syllabusflow/internal/config"
	"github.com/Lllllllleong/syllabusflow/internal/models"
	"github.com/Lllllllleong/syllabusflow/internal/pipeline"
)

type fakeSource struct {
	doc models.SourceDocument
	err error
}

func (s fakeSource) ReadObject(ctx context.Context, bucket, object string, maxBytes int64) (models.SourceDocument, error) {
	return s.doc, s.err
}

type fakeTracker struct {
	mu        sync.Mutex
	events    []models.ProgressEvent
	execution string
	failed    string
}

func (t *fakeTracker) Emit(event models.ProgressEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *fakeTracker) SetWorkflowExecution(ctx context.Context, execution string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.execution = execution
	return nil
}

func (t *fakeTracker) MarkFailed(ctx context.Context, details string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = details
	return nil
}

type fakeRuns struct {
	activeID string
	findErr  error
	hashes   []string
	started  []models.RunRecord
	tracker  *fakeTracker
}

func (r *fakeRuns) FindActive(ctx context.Context, fileHash string) (string, bool, error) {
	r.hashes = append(r.hashes, fileHash)
	if r.findErr != nil {
		return "", false, r.findErr
	}
	return r.activeID, r.activeID != "", nil
}

func (r *fakeRuns) Start(ctx context.Context, record models.RunRecord) (runTracker, error) {
	r.started = append(r.started, record)
	r.tracker = &fakeTracker{}
	return r.tracker, nil
}

type fakeRunner struct {
	syllabus *models.SyllabusSpec
	err      error
	calls    int
}

func (r *fakeRunner) Run(ctx context.Context, doc models.SourceDocument, opts pipeline.Options) (*pipeline.Result, error) {
	r.calls++
	if r.err != nil {
		opts.Sink.Emit(models.ProgressEvent{Stage: models.StageError, Percent: 90})
		return &pipeline.Result{RunID: opts.RunID, Status: models.StatusError, Err: r.err}, r.err
	}
	opts.Sink.Emit(models.ProgressEvent{Stage: models.StageCompleted, Percent: 100, Syllabus: r.syllabus})
	return &pipeline.Result{RunID: opts.RunID, Status: models.StatusSuccess, Syllabus: r.syllabus}, nil
}

type fakeLauncher struct {
	execution string
	err       error
	args      []any
}

func (l *fakeLauncher) Launch(ctx context.Context, argument any) (string, error) {
	l.args = append(l.args, argument)
	return l.execution, l.err
}

func newEventFunction(runner *fakeRunner, source objectSource, runs *fakeRuns, launcher workflowLauncher) *SyllabusFunction {
	f := &SyllabusFunction{
		cfg:      config.Default(),
		runner:   runner,
		source:   source,
		runs:     runs,
		launcher: launcher,
	}
	f.cloudOnce.Do(func() {})
	return f
}

var (
	uploadEvent = GCSEvent{Bucket: "uploads", Name: "course/notes.txt"}
	uploadDoc   = models.NewSourceDocument("notes.txt", "text/plain", []byte("Week one covers sets."))
	sampleSpec  = models.SyllabusSpec{Modules: []models.Module{{Title: "Sets", Lessons: []models.Lesson{{Title: "Basics"}}}}}
)

func TestProcessGCSEventSkipsDuplicate(t *testing.T) {
	runner := &fakeRunner{syllabus: &sampleSpec}
	runs := &fakeRuns{activeID: "run-earlier"}
	launcher := &fakeLauncher{execution: "exec-1"}
	f := newEventFunction(runner, fakeSource{doc: uploadDoc}, runs, launcher)

	require.NoError(t, f.ProcessGCSEvent(context.Background(), uploadEvent))

	assert.Equal(t, []string{contentHash(uploadDoc.Data)}, runs.hashes)
	assert.Empty(t, runs.started)
	assert.Zero(t, runner.calls)
	assert.Empty(t, launcher.args)
}

func TestProcessGCSEventDuplicateCheckFailureIsRetried(t *testing.T) {
	runner := &fakeRunner{syllabus: &sampleSpec}
	runs := &fakeRuns{findErr: errors.New("firestore unavailable")}
	f := newEventFunction(runner, fakeSource{doc: uploadDoc}, runs, nil)

	err := f.ProcessGCSEvent(context.Background(), uploadEvent)
	require.Error(t, err)
	assert.Empty(t, runs.started)
	assert.Zero(t, runner.calls)
}

func TestProcessGCSEventReadFailures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantRetry bool
	}{
		{"oversized object acknowledged", models.InputError("object exceeds the limit"), false},
		{"unreadable object acknowledged", models.UnreadableInputError("bad read", errors.New("eof")), false},
		{"transport failure retried", errors.New("connection reset"), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			runner := &fakeRunner{syllabus: &sampleSpec}
			runs := &fakeRuns{}
			f := newEventFunction(runner, fakeSource{err: tc.err}, runs, nil)

			err := f.ProcessGCSEvent(context.Background(), uploadEvent)
			if tc.wantRetry {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Empty(t, runs.hashes)
			assert.Zero(t, runner.calls)
		})
	}
}

func TestProcessGCSEventRunFailures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantRetry bool
	}{
		{"rate limited", models.ProviderError(429, "quota"), true},
		{"provider unavailable", models.ProviderError(503, "overloaded"), true},
		{"timeout", models.TimeoutError("slow", nil), true},
		{"malformed output", models.MalformedResponseError("no JSON", nil), false},
		{"unsupported upload", models.UnsupportedFormatError("image/png"), false},
		{"missing credential", models.MissingCredentialError("no key"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			runner := &fakeRunner{err: tc.err}
			runs := &fakeRuns{}
			launcher := &fakeLauncher{execution: "exec-1"}
			f := newEventFunction(runner, fakeSource{doc: uploadDoc}, runs, launcher)

			err := f.ProcessGCSEvent(context.Background(), uploadEvent)
			if tc.wantRetry {
				require.Error(t, err)
				assert.Equal(t, models.KindOf(tc.err), models.KindOf(err))
			} else {
				assert.NoError(t, err)
			}
			require.Len(t, runs.started, 1)
			assert.Equal(t, 1, runner.calls)
			assert.Empty(t, launcher.args)

			require.NotEmpty(t, runs.tracker.events)
			assert.Equal(t, models.StageError, runs.tracker.events[len(runs.tracker.events)-1].Stage)
		})
	}
}

func TestProcessGCSEventLaunchesWorkflow(t *testing.T) {
	runner := &fakeRunner{syllabus: &sampleSpec}
	runs := &fakeRuns{}
	launcher := &fakeLauncher{execution: "projects/p/locations/l/workflows/w/executions/e1"}
	f := newEventFunction(runner, fakeSource{doc: uploadDoc}, runs, launcher)

	require.NoError(t, f.ProcessGCSEvent(context.Background(), uploadEvent))

	require.Len(t, runs.started, 1)
	record := runs.started[0]
	assert.NotEmpty(t, record.RunID)
	assert.Equal(t, "gs://uploads/course/notes.txt", record.Source)
	assert.Equal(t, contentHash(uploadDoc.Data), record.FileHash)
	assert.Equal(t, "course/notes.txt", record.OriginalFilename)

	require.Len(t, launcher.args, 1)
	assert.Equal(t, models.SyllabusWorkflowArgument{
		RunID:    record.RunID,
		Source:   "gs://uploads/course/notes.txt",
		Syllabus: sampleSpec,
	}, launcher.args[0])

	assert.Equal(t, launcher.execution, runs.tracker.execution)
	assert.Empty(t, runs.tracker.failed)
	require.Len(t, runs.tracker.events, 1)
	assert.Equal(t, models.StageCompleted, runs.tracker.events[0].Stage)
}

func TestProcessGCSEventLaunchFailureMarksRunFailed(t *testing.T) {
	runner := &fakeRunner{syllabus: &sampleSpec}
	runs := &fakeRuns{}
	launcher := &fakeLauncher{err: errors.New("permission denied")}
	f := newEventFunction(runner, fakeSource{doc: uploadDoc}, runs, launcher)

	err := f.ProcessGCSEvent(context.Background(), uploadEvent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to trigger workflow execution")
	assert.Contains(t, runs.tracker.failed, "permission denied")
	assert.Empty(t, runs.tracker.execution)
}

func TestProcessGCSEventWithoutWorkflow(t *testing.T) {
	runner := &fakeRunner{syllabus: &sampleSpec}
	runs := &fakeRuns{}
	f := newEventFunction(runner, fakeSource{doc: uploadDoc}, runs, nil)

	require.NoError(t, f.ProcessGCSEvent(context.Background(), uploadEvent))
	assert.Equal(t, 1, runner.calls)
	require.Len(t, runs.started, 1)
	assert.Empty(t, runs.tracker.failed)
}
