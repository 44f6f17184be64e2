package services

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/syllabusflow/internal/gcp"
	"github.com/Lllllllleong/syllabusflow/internal/models"
	"github.com/Lllllllleong/syllabusflow/internal/progress"
)

type gcsSource struct {
	client *storage.Client
}

func (s gcsSource) ReadObject(ctx context.Context, bucket, object string, maxBytes int64) (models.SourceDocument, error) {
	return gcp.ReadObject(ctx, s.client, bucket, object, maxBytes)
}

// activeStatuses are the run statuses that make a new upload of the same
// file a duplicate. FAILED runs may be retried.
var activeStatuses = []string{"STARTED", "PROCESSING", "SUCCEEDED"}

type firestoreRuns struct {
	client     *firestore.Client
	collection string
}

func (s *firestoreRuns) FindActive(ctx context.Context, fileHash string) (string, bool, error) {
	docs, err := s.client.Collection(s.collection).
		Where("fileHash", "==", fileHash).
		Where("status", "in", activeStatuses).
		Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return "", false, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return docs[0].Ref.ID, true, nil
	}
	return "", false, nil
}

func (s *firestoreRuns) Start(ctx context.Context, record models.RunRecord) (runTracker, error) {
	docRef := gcp.RunDocument(s.client, s.collection, record.RunID)
	sink := progress.NewFirestore(docRef, slog.With("runId", record.RunID))
	if err := sink.Create(ctx, record); err != nil {
		return nil, err
	}
	return &firestoreRun{Firestore: sink, docRef: docRef}, nil
}

type firestoreRun struct {
	*progress.Firestore
	docRef *firestore.DocumentRef
}

func (r *firestoreRun) SetWorkflowExecution(ctx context.Context, execution string) error {
	_, err := r.docRef.Update(ctx, []firestore.Update{{Path: "workflowExecution", Value: execution}})
	return err
}

func (r *firestoreRun) MarkFailed(ctx context.Context, details string) error {
	updates := []firestore.Update{
		{Path: "status", Value: "FAILED"},
		{Path: "errorDetails", Value: details},
	}
	_, err := r.docRef.Update(ctx, updates)
	return err
}
