// Package httpapi exposes the pipeline over HTTP: a multipart upload that
// answers with JSON, or with a Server-Sent Events stream of progress.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/Lllllllleong/syllabusflow/internal/models"
	"github.com/Lllllllleong/syllabusflow/internal/pipeline"
	"github.com/Lllllllleong/syllabusflow/internal/progress"
)

// StatusClientClosedRequest is the non-standard status logged when the caller
// goes away before the run finishes.
const StatusClientClosedRequest = 499

const (
	multipartMemory = 32 << 20
	// formOverhead is the slack allowed on top of the document size for the
	// rest of the multipart body.
	formOverhead = 1 << 20
	sseBuffer    = 64
)

// Runner is the part of the orchestrator the handler drives.
type Runner interface {
	Run(ctx context.Context, doc models.SourceDocument, opts pipeline.Options) (*pipeline.Result, error)
}

// Limits bounds what a single request may ask for. MaxUploadBytes <= 0
// disables the size check; MaxLessons <= 0 uses pipeline.DefaultMaxTargetLessons.
type Limits struct {
	MaxUploadBytes int64
	MaxLessons     int
}

type Handler struct {
	runner Runner
	limits Limits
	logger *slog.Logger
}

func NewHandler(runner Runner, limits Limits, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if limits.MaxLessons <= 0 {
		limits.MaxLessons = pipeline.DefaultMaxTargetLessons
	}
	return &Handler{runner: runner, limits: limits, logger: logger}
}

// GenerateSyllabus handles POST requests carrying a multipart "file" field and
// an optional "lessons" field.
func (h *Handler) GenerateSyllabus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, "", models.InputError("method not allowed"), http.StatusMethodNotAllowed)
		return
	}
	runID := uuid.NewString()
	logCtx := h.logger.With("runId", runID)

	doc, lessons, err := h.readUpload(w, r)
	if err != nil {
		logCtx.Warn("Rejected upload.", "error", err)
		writeError(w, runID, err, StatusFor(err))
		return
	}
	logCtx = logCtx.With("document", doc.Name, "mediaType", doc.MediaType, "sizeBytes", doc.SizeBytes)
	logCtx.Info("Received syllabus request.", "lessons", lessons, "stream", wantsStream(r))

	opts := pipeline.Options{TargetLessons: lessons, RunID: runID}
	if wantsStream(r) {
		h.stream(w, r, doc, opts, logCtx)
		return
	}

	res, err := h.runner.Run(r.Context(), doc, opts)
	if err != nil {
		writeError(w, runID, err, StatusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, models.GenerateSyllabusResponse{
		RunID:    res.RunID,
		Status:   res.Status,
		Syllabus: res.Syllabus,
	})
}

// stream runs the pipeline with progress delivered as SSE frames. The
// response status is always 200 once streaming starts; the outcome is in the
// final "completed" or "error" event.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, doc models.SourceDocument, opts pipeline.Options, logCtx *slog.Logger) {
	sink := progress.NewAsync(progress.NewSSE(w, logCtx), sseBuffer, logCtx)
	opts.Sink = sink
	_, err := h.runner.Run(r.Context(), doc, opts)
	sink.Close()
	if err != nil {
		logCtx.Info("Streamed run ended with error.", "kind", models.KindOf(err))
	}
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (models.SourceDocument, int, error) {
	if h.limits.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxUploadBytes+formOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return models.SourceDocument{}, 0, models.InputError(fmt.Sprintf("upload exceeds the %d byte limit", h.limits.MaxUploadBytes))
		}
		return models.SourceDocument{}, 0, models.InputError(fmt.Sprintf("expected a multipart form: %v", err))
	}
	defer r.MultipartForm.RemoveAll()

	lessons := 0
	if v := strings.TrimSpace(r.FormValue("lessons")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return models.SourceDocument{}, 0, models.InputError(fmt.Sprintf("lessons must be an integer, got %q", v))
		}
		if n < 1 || n > h.limits.MaxLessons {
			return models.SourceDocument{}, 0, models.InputError(fmt.Sprintf("lessons must be between 1 and %d, got %d", h.limits.MaxLessons, n))
		}
		lessons = n
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return models.SourceDocument{}, 0, models.InputError("missing \"file\" field")
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return models.SourceDocument{}, 0, models.UnreadableInputError("failed to read upload", err)
	}
	return models.NewSourceDocument(header.Filename, header.Header.Get("Content-Type"), data), lessons, nil
}

func wantsStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// StatusFor maps an error kind to the HTTP status returned to callers.
func StatusFor(err error) int {
	switch models.KindOf(err) {
	case models.KindInput, models.KindUnreadableInput, models.KindExtractionFailed:
		return http.StatusBadRequest
	case models.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case models.KindRateLimited:
		return http.StatusTooManyRequests
	case models.KindTimeout:
		return http.StatusGatewayTimeout
	case models.KindProvider, models.KindEmptyResponse, models.KindMalformedResponse:
		return http.StatusBadGateway
	case models.KindCancelled:
		return StatusClientClosedRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, runID string, err error, status int) {
	writeJSON(w, status, models.GenerateSyllabusResponse{
		RunID:  runID,
		Status: models.StatusError,
		Error: &models.ErrorPayload{
			Kind:    models.KindOf(err),
			Message: models.UserMessage(err),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
