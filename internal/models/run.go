package models

import "time"

// RunRecord is the Firestore document tracking one run's progress.
// It never holds the generated syllabus.
type RunRecord struct {
	RunID             string    `firestore:"runId,omitempty"`
	OriginalFilename  string    `firestore:"originalFilename,omitempty"`
	Source            string    `firestore:"source,omitempty"`
	FileHash          string    `firestore:"fileHash,omitempty"`
	MediaType         string    `firestore:"mediaType,omitempty"`
	Status            string    `firestore:"status,omitempty"`
	Stage             string    `firestore:"stage,omitempty"`
	Percent           int       `firestore:"percent"`
	Message           string    `firestore:"message,omitempty"`
	ErrorKind         string    `firestore:"errorKind,omitempty"`
	ErrorDetails      string    `firestore:"errorDetails,omitempty"`
	WorkflowExecution string    `firestore:"workflowExecution,omitempty"`
	CreatedAt         time.Time `firestore:"createdAt,omitempty"`
	UpdatedAt         time.Time `firestore:"updatedAt,omitempty"`
}
