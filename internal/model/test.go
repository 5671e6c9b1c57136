package model

// Test is an exam definition as returned by the catalog and by start-attempt.
type Test struct {
	ID               string `json:"id" yaml:"id"`
	Title            string `json:"title" yaml:"title"`
	Description      string `json:"description,omitempty" yaml:"description"`
	CourseID         string `json:"course_id,omitempty" yaml:"course_id"`
	TimeLimitMinutes int    `json:"time_limit_minutes,omitempty" yaml:"time_limit_minutes"`
	TotalMarks       int    `json:"total_marks,omitempty" yaml:"-"`
	QuestionCount    int    `json:"question_count,omitempty" yaml:"-"`
	Instructions     string `json:"instructions,omitempty" yaml:"instructions"`
}
