package models

// SyllabusSpec is the validated course outline produced by the model.
type SyllabusSpec struct {
	Modules []Module `json:"modules"`
}

type Module struct {
	Title   string   `json:"title"`
	Lessons []Lesson `json:"lessons"`
}

type Lesson struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// LessonCount returns the total number of lessons across all modules.
func (s SyllabusSpec) LessonCount() int {
	n := 0
	for _, m := range s.Modules {
		n += len(m.Lessons)
	}
	return n
}
