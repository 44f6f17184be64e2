package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/syllabusflow/internal/models"
	"github.com/Lllllllleong/syllabusflow/internal/services"
)

var (
	syllabusInstance *services.SyllabusFunction
	once             sync.Once
	initErr          error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("GenerateSyllabus", generateSyllabus)
	functions.CloudEvent("GenerateSyllabusFromUpload", generateSyllabusFromUpload)
}

// main is required by the Go Functions Framework.
func main() {}

func instance() (*services.SyllabusFunction, error) {
	once.Do(func() {
		syllabusInstance, initErr = services.NewSyllabusFunction(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
	}
	return syllabusInstance, initErr
}

func generateSyllabus(w http.ResponseWriter, r *http.Request) {
	f, err := instance()
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.GenerateSyllabusResponse{
			Status: models.StatusError,
			Error:  &models.ErrorPayload{Message: "service is not initialized"},
		})
		return
	}
	f.ServeHTTP(w, r)
}

func generateSyllabusFromUpload(ctx context.Context, e cloudevents.Event) error {
	f, err := instance()
	if err != nil {
		return err
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	return f.ProcessGCSEvent(ctx, gcsEvent)
}
