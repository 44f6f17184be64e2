package progress

import (
	"context"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/syllabusflow/internal/models"
)

// Firestore mirrors a run's progress into a single Firestore document.
// Writes are synchronous; wrap with NewAsync when used on a hot path.
type Firestore struct {
	docRef  *firestore.DocumentRef
	timeout time.Duration
	logger  *slog.Logger
}

func NewFirestore(docRef *firestore.DocumentRef, logger *slog.Logger) *Firestore {
	if logger == nil {
		logger = slog.Default()
	}
	return &Firestore{docRef: docRef, timeout: 10 * time.Second, logger: logger}
}

// Create writes the initial record for a run.
func (f *Firestore) Create(ctx context.Context, record models.RunRecord) error {
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.Status == "" {
		record.Status = statusFor(models.StageStarting)
	}
	_, err := f.docRef.Set(ctx, record)
	return err
}

func (f *Firestore) Emit(event models.ProgressEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if _, err := f.docRef.Update(ctx, recordUpdates(event)); err != nil {
		f.logger.Error("Failed to update run status in Firestore.", "documentId", f.docRef.ID, "stage", event.Stage, "error", err)
	}
}

// recordUpdates maps an event onto RunRecord field updates.
func recordUpdates(event models.ProgressEvent) []firestore.Update {
	updated := event.Time
	if updated.IsZero() {
		updated = time.Now()
	}
	updates := []firestore.Update{
		{Path: "status", Value: statusFor(event.Stage)},
		{Path: "stage", Value: string(event.Stage)},
		{Path: "percent", Value: event.Percent},
		{Path: "message", Value: event.Message},
		{Path: "updatedAt", Value: updated},
	}
	if event.ErrorKind != "" {
		updates = append(updates, firestore.Update{Path: "errorKind", Value: string(event.ErrorKind)})
	}
	return updates
}

func statusFor(stage models.Stage) string {
	switch stage {
	case models.StageCompleted:
		return "SUCCEEDED"
	case models.StageError:
		return "FAILED"
	case models.StageStarting:
		return "STARTED"
	}
	return "PROCESSING"
}
