package models

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MediaType is a normalized MIME type without parameters.
type MediaType string

const (
	MediaTypePlainText  MediaType = "text/plain"
	MediaTypeMarkdown   MediaType = "text/markdown"
	MediaTypePDF        MediaType = "application/pdf"
	MediaTypeMSWord     MediaType = "application/msword"
	MediaTypePowerPoint MediaType = "application/vnd.ms-powerpoint"
)

// FormatFamily groups media types by how their text is extracted.
type FormatFamily int

const (
	FamilyUnknown FormatFamily = iota
	FamilyPlainText
	FamilyPaginated
	FamilyLegacyOffice
)

var families = map[MediaType]FormatFamily{
	MediaTypePlainText:  FamilyPlainText,
	MediaTypeMarkdown:   FamilyPlainText,
	MediaTypePDF:        FamilyPaginated,
	MediaTypeMSWord:     FamilyLegacyOffice,
	MediaTypePowerPoint: FamilyLegacyOffice,
}

var extensions = map[string]MediaType{
	".txt":      MediaTypePlainText,
	".text":     MediaTypePlainText,
	".md":       MediaTypeMarkdown,
	".markdown": MediaTypeMarkdown,
	".pdf":      MediaTypePDF,
	".doc":      MediaTypeMSWord,
	".ppt":      MediaTypePowerPoint,
}

// Family returns the extraction family of the media type.
func (m MediaType) Family() FormatFamily {
	return families[m]
}

// Supported reports whether an extractor exists for the media type.
func (m MediaType) Supported() bool {
	return m.Family() != FamilyUnknown
}

// NormalizeMediaType lower-cases a declared content type and drops its
// parameters. An empty or generic binary type is inferred from the file name.
func NormalizeMediaType(declared, name string) MediaType {
	declared = strings.TrimSpace(declared)
	if mt, _, err := mime.ParseMediaType(declared); err == nil {
		declared = mt
	} else if i := strings.Index(declared, ";"); i >= 0 {
		declared = declared[:i]
	}
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared == "" || declared == "application/octet-stream" {
		if mt, ok := extensions[strings.ToLower(filepath.Ext(name))]; ok {
			return mt
		}
	}
	return MediaType(declared)
}

// SourceDocument is one uploaded file handed to the pipeline.
type SourceDocument struct {
	Data      []byte
	MediaType MediaType
	Name      string
	SizeBytes int64
}

// NewSourceDocument builds a document from raw bytes and a declared content type.
func NewSourceDocument(name, contentType string, data []byte) SourceDocument {
	return SourceDocument{
		Data:      data,
		MediaType: NormalizeMediaType(contentType, name),
		Name:      name,
		SizeBytes: int64(len(data)),
	}
}

// Validate checks the document against the upload ceiling and the set of
// recognized media types. maxBytes <= 0 disables the size check.
func (d SourceDocument) Validate(maxBytes int64) error {
	if len(d.Data) == 0 {
		return InputError("document is empty")
	}
	if d.SizeBytes != int64(len(d.Data)) {
		return InputError(fmt.Sprintf("declared size %d does not match %d bytes received", d.SizeBytes, len(d.Data)))
	}
	if maxBytes > 0 && d.SizeBytes > maxBytes {
		return InputError(fmt.Sprintf("document is %d bytes, the limit is %d", d.SizeBytes, maxBytes))
	}
	if !d.MediaType.Supported() {
		return UnsupportedFormatError(string(d.MediaType))
	}
	return nil
}

// ExtractionResult is the text pulled out of a SourceDocument.
// CharacterCount always equals the rune count of Text.
type ExtractionResult struct {
	Text           string `json:"text"`
	CharacterCount int    `json:"characterCount"`
	Units          int    `json:"units"`
}

// NewExtractionResult computes the character count from text.
func NewExtractionResult(text string, units int) ExtractionResult {
	return ExtractionResult{
		Text:           text,
		CharacterCount: utf8.RuneCountInString(text),
		Units:          units,
	}
}
