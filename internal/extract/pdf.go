package extract

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var pdfMagic = []byte("%PDF-")

// OpenPDF validates the document with pdfcpu to learn its page count and
// decodes page text with ledongthuc/pdf.
func OpenPDF(data []byte) (PageSource, error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, fmt.Errorf("missing %%PDF header")
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pageCount, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf reader: %w", err)
	}
	return &pdfPages{reader: reader, pages: pageCount}, nil
}

type pdfPages struct {
	reader *pdf.Reader
	pages  int
}

func (p *pdfPages) NumPages() int { return p.pages }

// PageText recovers from decoder panics, which ledongthuc/pdf raises on some
// malformed content streams.
func (p *pdfPages) PageText(ctx context.Context, page int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf decoder panic: %v", r)
		}
	}()
	pg := p.reader.Page(page)
	if pg.V.IsNull() {
		return "", fmt.Errorf("page object not found")
	}
	return pg.GetPlainText(nil)
}
