package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/syllabusflow/internal/config"
	"github.com/Lllllllleong/syllabusflow/internal/extract"
	"github.com/Lllllllleong/syllabusflow/internal/models"
	"github.com/Lllllllleong/syllabusflow/internal/pipeline"
)

type generateOptions struct {
	lessons     int
	concurrency int
	quiet       bool
}

// fileResult is one entry of the JSON printed on stdout.
type fileResult struct {
	File     string               `json:"file"`
	RunID    string               `json:"runId,omitempty"`
	Status   models.Status        `json:"status"`
	Syllabus *models.SyllabusSpec `json:"syllabus,omitempty"`
	Error    *models.ErrorPayload `json:"error,omitempty"`
}

func newGenerateCmd() *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate FILE...",
		Short: "Generate a syllabus for each file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.lessons, "lessons", "n", 0, "target number of lessons (default from config)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 2, "documents processed at once")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}

func runGenerate(cmd *cobra.Command, files []string, opts *generateOptions) error {
	ctx := cmd.Context()
	logger := slog.Default()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	generator, err := cfg.NewGenerator(ctx, logger)
	if err != nil {
		return err
	}
	defer generator.Close()
	orch := pipeline.New(extract.NewEngine(logger), generator, cfg.OrchestratorConfig(), logger)

	jobs, results := loadJobs(files, opts.lessons)

	var barOut io.Writer = cmd.ErrOrStderr()
	if opts.quiet {
		barOut = io.Discard
	}
	bar := newBatchBar(barOut, len(jobs))
	for i := range jobs {
		jobs[i].Options.Sink = bar.sink(i)
		if results[i].Error != nil {
			bar.update(i, models.ProgressEvent{Stage: models.StageError})
		}
	}
	runnable := make([]pipeline.Job, 0, len(jobs))
	index := make([]int, 0, len(jobs))
	for i, job := range jobs {
		if results[i].Error == nil {
			runnable = append(runnable, job)
			index = append(index, i)
		}
	}

	for _, br := range orch.Batch(ctx, runnable, opts.concurrency) {
		results[index[br.Index]] = toFileResult(files[index[br.Index]], br.Result, br.Err)
	}
	bar.finish()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(results))
	}
	return nil
}

// loadJobs reads every file up front; unreadable files get an error result and
// are skipped by the batch.
func loadJobs(files []string, lessons int) ([]pipeline.Job, []fileResult) {
	jobs := make([]pipeline.Job, len(files))
	results := make([]fileResult, len(files))
	for i, path := range files {
		results[i] = fileResult{File: path, Status: models.StatusIdle}
		data, err := os.ReadFile(path)
		if err != nil {
			uerr := models.InputError(fmt.Sprintf("cannot read %s: %v", path, err))
			results[i] = toFileResult(path, nil, uerr)
			continue
		}
		jobs[i] = pipeline.Job{
			Document: models.NewSourceDocument(filepath.Base(path), "", data),
			Options:  pipeline.Options{TargetLessons: lessons},
		}
	}
	return jobs, results
}

func toFileResult(path string, res *pipeline.Result, err error) fileResult {
	out := fileResult{File: path, Status: models.StatusError}
	if res != nil {
		out.RunID = res.RunID
		out.Status = res.Status
		out.Syllabus = res.Syllabus
	}
	if err != nil {
		out.Status = models.StatusError
		out.Error = &models.ErrorPayload{Kind: models.KindOf(err), Message: models.UserMessage(err)}
	}
	return out
}
