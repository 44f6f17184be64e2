// Package generate calls the generative model that drafts the syllabus.
// Clients never retry; callers decide what to do with rate-limit and
// timeout failures.
package generate

import (
	"context"
	"errors"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/syllabusflow/internal/models"
)

// Generator turns a prompt into raw model text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ModelParameters are sent with every request.
type ModelParameters struct {
	Temperature      float32
	MaxOutputTokens  int32
	ResponseMIMEType string
}

// DefaultModelParameters asks for low-temperature JSON output.
func DefaultModelParameters() ModelParameters {
	return ModelParameters{
		Temperature:      0.4,
		MaxOutputTokens:  8192,
		ResponseMIMEType: "application/json",
	}
}

// DefaultTimeout bounds one generation call when none is configured.
const DefaultTimeout = 90 * time.Second

// classifyCallError maps a failed call onto the error taxonomy. parent is the
// caller's context and call the per-request context carrying the timeout.
func classifyCallError(parent, call context.Context, err error) error {
	if parent.Err() != nil {
		return models.CancelledError(parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(call.Err(), context.DeadlineExceeded) {
		return models.TimeoutError("generation request timed out", err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return models.ProviderError(gerr.Code, gerr.Message)
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		if st.Code() == codes.DeadlineExceeded {
			return models.TimeoutError("generation request timed out", err)
		}
		if st.Code() == codes.Canceled {
			return models.CancelledError(err)
		}
		return models.ProviderError(httpStatusFromCode(st.Code()), st.Message())
	}

	perr := models.ProviderError(0, err.Error())
	perr.Err = err
	return perr
}

func httpStatusFromCode(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
