package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Lllllllleong/syllabusflow/internal/models"
	"github.com/Lllllllleong/syllabusflow/internal/pipeline"
)

func TestContentHashIsStable(t *testing.T) {
	a := contentHash([]byte("chapter one"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, contentHash([]byte("chapter one")))
	assert.NotEqual(t, a, contentHash([]byte("chapter two")))
}

func TestGCSURI(t *testing.T) {
	assert.Equal(t, "gs://uploads/course/notes.pdf", gcsURI("uploads", "course/notes.pdf"))
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, shouldRetry(models.ProviderError(429, "")))
	assert.True(t, shouldRetry(models.ProviderError(503, "")))
	assert.True(t, shouldRetry(models.TimeoutError("slow", nil)))
	assert.False(t, shouldRetry(models.UnsupportedFormatError("image/png")))
	assert.False(t, shouldRetry(models.MalformedResponseError("bad", nil)))
	assert.False(t, shouldRetry(models.MissingCredentialError("no key")))
	assert.False(t, shouldRetry(errors.New("untyped")))
}

func TestWorkflowArgument(t *testing.T) {
	spec := models.SyllabusSpec{Modules: []models.Module{{Title: "M", Lessons: []models.Lesson{{Title: "L"}}}}}
	arg := workflowArgument(&pipeline.Result{RunID: "run-1", Syllabus: &spec}, "gs://b/o.pdf")
	assert.Equal(t, "run-1", arg.RunID)
	assert.Equal(t, "gs://b/o.pdf", arg.Source)
	assert.Equal(t, spec, arg.Syllabus)
}
