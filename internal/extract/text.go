package extract

import (
	"bytes"
	"context"
	"unicode/utf8"

	"github.com/Lllllllleong/syllabusflow/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// PlainText reads text and markdown documents in one pass.
type PlainText struct{}

func (PlainText) Extract(ctx context.Context, doc models.SourceDocument, onProgress OnProgress) (models.ExtractionResult, error) {
	if err := cancelled(ctx); err != nil {
		return models.ExtractionResult{}, err
	}
	onProgress.emit(models.StageStarting, 0, "Reading text document")

	data := bytes.TrimPrefix(doc.Data, utf8BOM)
	if !utf8.Valid(data) {
		err := models.UnreadableInputError("text document is not valid UTF-8", nil)
		onProgress.emit(models.StageError, 0, err.Message)
		return models.ExtractionResult{}, err
	}

	res := models.NewExtractionResult(string(data), 1)
	onProgress.emit(models.StageCompleted, 100, "Text document read")
	return res, nil
}
