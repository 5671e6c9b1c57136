package model

// SectionScore counts correct answers within one section.
type SectionScore struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Accuracy returns the share of correct answers in percent.
func (s SectionScore) Accuracy() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total) * 100
}

// SubmitResult is the submit-attempt response body.
type SubmitResult struct {
	Score          float64                 `json:"score"`
	TotalMarks     int                     `json:"total_marks"`
	Percentage     float64                 `json:"percentage"`
	Breakdown      map[string]SectionScore `json:"breakdown"`
	TotalQuestions int                     `json:"total_questions,omitempty"`
	Answered       int                     `json:"answered,omitempty"`
}

// ReviewQuestion is a question with the student's and the correct answer.
type ReviewQuestion struct {
	Question
	StudentAnswer *string `json:"student_answer"`
	CorrectAnswer string  `json:"correct_answer"`
	IsCorrect     bool    `json:"is_correct"`
	Explanation   string  `json:"explanation,omitempty"`
}

// Review is the attempt-review response body.
type Review struct {
	Attempt   Attempt          `json:"attempt"`
	Questions []ReviewQuestion `json:"questions"`
}

// Result builds a SubmitResult from the attempt summary of a review.
func (r *Review) Result() *SubmitResult {
	answered := 0
	for _, q := range r.Questions {
		if q.StudentAnswer != nil {
			answered++
		}
	}
	return &SubmitResult{
		Score:          r.Attempt.Score,
		TotalMarks:     r.Attempt.TotalMarks,
		Percentage:     r.Attempt.Percentage,
		Breakdown:      r.Attempt.Breakdown,
		TotalQuestions: len(r.Questions),
		Answered:       answered,
	}
}
