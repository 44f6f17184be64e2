package models

import "time"

// Stage is the phase reported by a ProgressEvent.
type Stage string

const (
	StageStarting   Stage = "starting"
	StageProcessing Stage = "processing"
	StageCompleted  Stage = "completed"
	StageError      Stage = "error"
)

// ProgressEvent is pushed to observers while a run advances. Syllabus is set
// only on the final completed event of a successful run, ErrorKind only on
// error events.
type ProgressEvent struct {
	Stage     Stage         `json:"stage"`
	Percent   int           `json:"percent"`
	Message   string        `json:"message"`
	ErrorKind ErrorKind     `json:"errorKind,omitempty"`
	Syllabus  *SyllabusSpec `json:"syllabus,omitempty"`
	Time      time.Time     `json:"time"`
}

// Status is the overall state of a pipeline run.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusUploading  Status = "uploading"
	StatusExtracting Status = "extracting"
	StatusGenerating Status = "generating"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}
