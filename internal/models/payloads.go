package models

// These structs define the JSON payloads exchanged with HTTP callers and with
// the downstream workflow.

// ErrorPayload describes a failed run to HTTP callers.
type ErrorPayload struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// GenerateSyllabusResponse is the body returned by the HTTP surface.
type GenerateSyllabusResponse struct {
	RunID    string        `json:"runId"`
	Status   Status        `json:"status"`
	Syllabus *SyllabusSpec `json:"syllabus,omitempty"`
	Error    *ErrorPayload `json:"error,omitempty"`
}

// SyllabusWorkflowArgument is passed to the downstream workflow once a
// syllabus has been generated from a Cloud Storage upload.
type SyllabusWorkflowArgument struct {
	RunID    string       `json:"runId"`
	Source   string       `json:"source"`
	Syllabus SyllabusSpec `json:"syllabus"`
}
