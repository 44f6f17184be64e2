package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/syllabusflow/internal/models"
)

// Job is one document to run through the pipeline.
type Job struct {
	Document models.SourceDocument
	Options  Options
}

// BatchResult pairs a job's outcome with its position in the input.
type BatchResult struct {
	Index  int
	Result *Result
	Err    error
}

// Batch runs independent jobs concurrently, at most limit at a time. A failed
// job does not stop the others; results keep the input order.
func (o *Orchestrator) Batch(ctx context.Context, jobs []Job, limit int) []BatchResult {
	results := make([]BatchResult, len(jobs))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, job := range jobs {
		g.Go(func() error {
			res, err := o.Run(ctx, job.Document, job.Options)
			results[i] = BatchResult{Index: i, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
