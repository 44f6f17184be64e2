package extract

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/Lllllllleong/syllabusflow/internal/models"
)

// PageSource gives page-by-page access to a paginated document. Pages are 1-based.
type PageSource interface {
	NumPages() int
	PageText(ctx context.Context, page int) (string, error)
}

// PageOpener parses raw document bytes into a PageSource.
type PageOpener func(data []byte) (PageSource, error)

// Paginated extracts PDFs one page at a time, emitting a processing event
// after each page and checking for cancellation between pages.
type Paginated struct {
	Open   PageOpener
	logger *slog.Logger
}

func (p *Paginated) Extract(ctx context.Context, doc models.SourceDocument, onProgress OnProgress) (models.ExtractionResult, error) {
	if err := cancelled(ctx); err != nil {
		return models.ExtractionResult{}, err
	}
	onProgress.emit(models.StageStarting, 0, "Opening document")

	src, err := p.Open(doc.Data)
	if err != nil {
		uerr := models.UnreadableInputError("could not open paginated document", err)
		onProgress.emit(models.StageError, 0, uerr.Error())
		return models.ExtractionResult{}, uerr
	}
	n := src.NumPages()
	if n <= 0 {
		uerr := models.UnreadableInputError("document has no pages", nil)
		onProgress.emit(models.StageError, 0, uerr.Error())
		return models.ExtractionResult{}, uerr
	}

	var buf strings.Builder
	last := 0
	for i := 1; i <= n; i++ {
		if err := cancelled(ctx); err != nil {
			return models.ExtractionResult{}, err
		}
		text, err := src.PageText(ctx, i)
		if err != nil {
			if cerr := cancelled(ctx); cerr != nil {
				return models.ExtractionResult{}, cerr
			}
			ferr := models.ExtractionFailedError(i, err)
			onProgress.emit(models.StageError, last, ferr.Error())
			return models.ExtractionResult{}, ferr
		}
		buf.WriteString(text)
		buf.WriteByte('\n')

		last = pagePercent(i, n)
		onProgress.emit(models.StageProcessing, last, fmt.Sprintf("Read page %d of %d", i, n))
	}

	if p.logger != nil {
		p.logger.Debug("All pages decoded.", "document", doc.Name, "pages", n)
	}
	onProgress.emit(models.StageCompleted, 100, fmt.Sprintf("Read %d pages", n))
	return models.NewExtractionResult(buf.String(), n), nil
}

func pagePercent(i, n int) int {
	return int(math.Round(100 * float64(i) / float64(n)))
}
