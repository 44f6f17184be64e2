package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/Lllllllleong/syllabusflow/internal/models"
	"github.com/Lllllllleong/syllabusflow/internal/progress"
)

// batchBar folds the progress of several concurrent runs into one bar whose
// maximum is 100 per document.
type batchBar struct {
	mu       sync.Mutex
	bar      *progressbar.ProgressBar
	percents []int
	done     int
}

func newBatchBar(w io.Writer, documents int) *batchBar {
	bar := progressbar.NewOptions(
		documents*100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(fmt.Sprintf("0/%d documents", documents)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &batchBar{bar: bar, percents: make([]int, documents)}
}

func (b *batchBar) sink(i int) progress.Sink {
	return progress.Func(func(e models.ProgressEvent) { b.update(i, e) })
}

func (b *batchBar) update(i int, e models.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pct := e.Percent
	if e.Stage == models.StageCompleted || e.Stage == models.StageError {
		// A failed document still counts as finished for the bar.
		pct = 100
		b.done++
		b.bar.Describe(fmt.Sprintf("%d/%d documents", b.done, len(b.percents)))
	}
	if pct < b.percents[i] {
		return
	}
	b.percents[i] = pct
	_ = b.bar.Set(b.total())
}

func (b *batchBar) total() int {
	sum := 0
	for _, p := range b.percents {
		sum += p
	}
	return sum
}

func (b *batchBar) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.bar.Finish()
}
