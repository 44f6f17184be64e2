// Package prompt builds the instruction sent to the model for syllabus generation.
package prompt

import (
	"fmt"
	"strings"
)

const (
	// DefaultMaxSourceChars keeps the document excerpt well inside the model's context window.
	DefaultMaxSourceChars = 30000
	// MaxLessonsPerModule caps how many lessons the model is asked to put in one module.
	MaxLessonsPerModule = 4
)

// SystemInstruction is set as the model's system prompt where the provider supports one.
const SystemInstruction = "You are an experienced instructional designer. You turn source material into clear, well-sequenced course syllabi. You always answer with a single valid JSON object."

const schemaExample = `{
  "modules": [
    {
      "title": "Module 1: Foundations",
      "lessons": [
        {
          "title": "Lesson 1: What the subject is about",
          "description": "A short paragraph explaining what the learner will study in this lesson."
        }
      ]
    }
  ]
}`

// CoursePlan is the module/lesson layout communicated to the model. The
// counts are targets; the parser does not enforce them.
type CoursePlan struct {
	TargetLessons    int
	ModuleCount      int
	LessonsPerModule int
}

// Plan splits targetLessons into modules of at most MaxLessonsPerModule lessons.
// Values below 1 are treated as 1.
func Plan(targetLessons int) CoursePlan {
	if targetLessons < 1 {
		targetLessons = 1
	}
	modules := ceilDiv(targetLessons, MaxLessonsPerModule)
	perModule := min(MaxLessonsPerModule, ceilDiv(targetLessons, modules))
	return CoursePlan{TargetLessons: targetLessons, ModuleCount: modules, LessonsPerModule: perModule}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Builder renders prompts with a configurable source budget.
type Builder struct {
	MaxSourceChars int
}

// Build is Builder.Build with DefaultMaxSourceChars.
func Build(text string, targetLessons int) string {
	return Builder{}.Build(text, targetLessons)
}

// Build is pure: the same text and lesson target always yield the same prompt.
func (b Builder) Build(text string, targetLessons int) string {
	limit := b.MaxSourceChars
	if limit <= 0 {
		limit = DefaultMaxSourceChars
	}
	plan := Plan(targetLessons)
	excerpt := Truncate(text, limit)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a course syllabus based on the source material below.\n\n")
	fmt.Fprintf(&sb, "Course structure:\n")
	fmt.Fprintf(&sb, "- Organize the course into %d module(s).\n", plan.ModuleCount)
	fmt.Fprintf(&sb, "- Each module should contain up to %d lesson(s), for a total of %d lesson(s).\n", plan.LessonsPerModule, plan.TargetLessons)
	fmt.Fprintf(&sb, "- Order modules and lessons from introductory to advanced topics.\n")
	fmt.Fprintf(&sb, "- Every lesson needs a concise title and a one or two sentence description of what it covers.\n")
	fmt.Fprintf(&sb, "- Base every module and lesson on the source material; do not invent unrelated topics.\n\n")
	fmt.Fprintf(&sb, "Respond with a single JSON object that matches this structure exactly:\n%s\n\n", schemaExample)
	fmt.Fprintf(&sb, "Return ONLY the JSON object. Do not add explanations, markdown fences, or any text before or after it.\n\n")
	fmt.Fprintf(&sb, "Source material:\n\"\"\"\n%s\n\"\"\"\n", excerpt)
	return sb.String()
}

// Truncate hard-cuts s to at most limit characters (runes).
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
