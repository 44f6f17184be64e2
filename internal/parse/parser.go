// Package parse extracts and validates the syllabus JSON embedded in model output.
package parse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Lllllllleong/syllabusflow/internal/models"
)

// Parse locates the JSON object in raw model output, tolerating prose or code
// fences around it, and validates it as a syllabus. Malformed JSON is rejected,
// never repaired.
func Parse(raw string) (models.SyllabusSpec, error) {
	payload, ok := findJSONObject(stripFences(raw))
	if !ok {
		return models.SyllabusSpec{}, models.MalformedResponseError("model output contains no JSON object", nil)
	}

	var doc rawSyllabus
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&doc); err != nil {
		return models.SyllabusSpec{}, models.MalformedResponseError("model output does not match the syllabus shape", err)
	}
	return doc.validate()
}

// rawSyllabus mirrors SyllabusSpec with pointers so absent and null fields
// can be told apart from empty ones.
type rawSyllabus struct {
	Modules *[]*rawModule `json:"modules"`
}

type rawModule struct {
	Title   *string       `json:"title"`
	Lessons *[]*rawLesson `json:"lessons"`
}

type rawLesson struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func (r rawSyllabus) validate() (models.SyllabusSpec, error) {
	if r.Modules == nil || len(*r.Modules) == 0 {
		return models.SyllabusSpec{}, malformed("modules", "must be a non-empty array")
	}
	spec := models.SyllabusSpec{Modules: make([]models.Module, 0, len(*r.Modules))}
	for i, m := range *r.Modules {
		path := fmt.Sprintf("modules[%d]", i)
		if m == nil {
			return models.SyllabusSpec{}, malformed(path, "must be an object")
		}
		if m.Title == nil || strings.TrimSpace(*m.Title) == "" {
			return models.SyllabusSpec{}, malformed(path+".title", "must be a non-empty string")
		}
		if m.Lessons == nil || len(*m.Lessons) == 0 {
			return models.SyllabusSpec{}, malformed(path+".lessons", "must be a non-empty array")
		}
		module := models.Module{Title: *m.Title, Lessons: make([]models.Lesson, 0, len(*m.Lessons))}
		for j, l := range *m.Lessons {
			lpath := fmt.Sprintf("%s.lessons[%d]", path, j)
			if l == nil {
				return models.SyllabusSpec{}, malformed(lpath, "must be an object")
			}
			if l.Title == nil || strings.TrimSpace(*l.Title) == "" {
				return models.SyllabusSpec{}, malformed(lpath+".title", "must be a non-empty string")
			}
			if l.Description == nil {
				return models.SyllabusSpec{}, malformed(lpath+".description", "is missing")
			}
			module.Lessons = append(module.Lessons, models.Lesson{Title: *l.Title, Description: *l.Description})
		}
		spec.Modules = append(spec.Modules, module)
	}
	return spec, nil
}

func malformed(path, problem string) error {
	return models.MalformedResponseError(fmt.Sprintf("%s %s", path, problem), nil)
}

// stripFences removes a surrounding ```json ... ``` block if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// findJSONObject picks the JSON object the model meant as its answer.
// Candidates are the span from each '{' to its balanced closing brace, plus
// the span from the first '{' to the last '}'. Among the candidates that are
// valid objects, one with a top-level "modules" key wins over one without,
// and a larger one wins over a smaller one, so example objects echoed in the
// surrounding prose are passed over.
func findJSONObject(s string) ([]byte, bool) {
	var best []byte
	bestHasModules := false
	consider := func(candidate []byte) {
		fields, ok := objectFields(candidate)
		if !ok {
			return
		}
		_, hasModules := fields["modules"]
		switch {
		case best == nil,
			hasModules && !bestHasModules,
			hasModules == bestHasModules && len(candidate) > len(best):
			best, bestHasModules = candidate, hasModules
		}
	}

	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end, ok := matchBrace(s, start); ok {
			consider([]byte(s[start : end+1]))
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	first, last := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if first >= 0 && last > first {
		consider([]byte(s[first : last+1]))
	}
	return best, best != nil
}

// matchBrace finds the '}' closing the '{' at start, skipping braces inside
// JSON strings.
func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// objectFields returns the top-level fields of b when b is a valid JSON object.
func objectFields(b []byte) (map[string]json.RawMessage, bool) {
	if !json.Valid(b) {
		return nil, false
	}
	var v map[string]json.RawMessage
	if err := json.Unmarshal(b, &v); err != nil || v == nil {
		return nil, false
	}
	return v, true
}
