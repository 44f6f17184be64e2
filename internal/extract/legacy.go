package extract

import (
	"context"

	"github.com/Lllllllleong/syllabusflow/internal/models"
)

// LegacyPlaceholder stands in for the content of binary Office formats that
// cannot be decoded. Downstream stages receive it like any other text.
const LegacyPlaceholder = "This document was uploaded in a legacy Office format whose text could not be extracted. " +
	"Create a general introductory course that covers the fundamentals of the subject suggested by the course title, " +
	"progressing from core concepts to practical applications."

// LegacyOffice returns the deterministic placeholder for .doc and .ppt files.
type LegacyOffice struct{}

func (LegacyOffice) Extract(ctx context.Context, doc models.SourceDocument, onProgress OnProgress) (models.ExtractionResult, error) {
	if err := cancelled(ctx); err != nil {
		return models.ExtractionResult{}, err
	}
	onProgress.emit(models.StageStarting, 0, "Reading legacy Office document")
	onProgress.emit(models.StageCompleted, 100, "Legacy Office format; using placeholder content")
	return models.NewExtractionResult(LegacyPlaceholder, 1), nil
}
