// Package extract turns uploaded documents into plain text, reporting
// progress as pages are decoded.
package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/Lllllllleong/syllabusflow/internal/models"
)

// OnProgress receives extraction progress. It may be nil.
type OnProgress func(models.ProgressEvent)

func (f OnProgress) emit(stage models.Stage, percent int, message string) {
	if f == nil {
		return
	}
	f(models.ProgressEvent{Stage: stage, Percent: percent, Message: message, Time: time.Now()})
}

// Extractor decodes one family of media types.
type Extractor interface {
	Extract(ctx context.Context, doc models.SourceDocument, onProgress OnProgress) (models.ExtractionResult, error)
}

// Engine dispatches a document to the extractor registered for its format family.
type Engine struct {
	extractors map[models.FormatFamily]Extractor
	logger     *slog.Logger
}

type Option func(*Engine)

// WithPageOpener replaces the PDF decoder, mainly for tests.
func WithPageOpener(open PageOpener) Option {
	return func(e *Engine) {
		e.extractors[models.FamilyPaginated] = &Paginated{Open: open, logger: e.logger}
	}
}

func NewEngine(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		logger: logger,
		extractors: map[models.FormatFamily]Extractor{
			models.FamilyPlainText:    PlainText{},
			models.FamilyPaginated:    &Paginated{Open: OpenPDF, logger: logger},
			models.FamilyLegacyOffice: LegacyOffice{},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract fails with an unsupported-format error, before emitting any event,
// when no extractor handles the document's media type.
func (e *Engine) Extract(ctx context.Context, doc models.SourceDocument, onProgress OnProgress) (models.ExtractionResult, error) {
	ex, ok := e.extractors[doc.MediaType.Family()]
	if !ok {
		return models.ExtractionResult{}, models.UnsupportedFormatError(string(doc.MediaType))
	}
	logCtx := e.logger.With("document", doc.Name, "mediaType", doc.MediaType, "sizeBytes", doc.SizeBytes)
	logCtx.Info("Starting text extraction.")

	res, err := ex.Extract(ctx, doc, onProgress)
	if err != nil {
		logCtx.Error("Text extraction failed", "error", err)
		return models.ExtractionResult{}, err
	}
	logCtx.Info("Text extraction complete.", "characters", res.CharacterCount, "units", res.Units)
	return res, nil
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return models.CancelledError(err)
	}
	return nil
}
