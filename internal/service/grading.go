package service

import (
	"math"

	"github.com/stemsi/aptiq-proctor/internal/model"
	"github.com/stemsi/aptiq-proctor/internal/repository"
)

// defaultSection groups questions that carry no section name.
const defaultSection = "general"

// Grade marks answers against the answer keys. Answers are compared
// exactly; unknown question ids are ignored.
func Grade(questions []model.Question, keys map[string]repository.AnswerKey, answers map[string]string) *model.SubmitResult {
	res := &model.SubmitResult{
		Breakdown:      make(map[string]model.SectionScore),
		TotalQuestions: len(questions),
	}

	var score int
	for _, q := range questions {
		section := q.Section
		if section == "" {
			section = defaultSection
		}
		sc := res.Breakdown[section]
		sc.Total++

		res.TotalMarks += q.Marks
		if ans, ok := answers[q.ID]; ok && ans != "" {
			res.Answered++
			if ans == keys[q.ID].Answer {
				sc.Correct++
				score += q.Marks
			}
		}
		res.Breakdown[section] = sc
	}

	res.Score = float64(score)
	if res.TotalMarks > 0 {
		res.Percentage = math.Round(float64(score)/float64(res.TotalMarks)*10000) / 100
	}
	return res
}

// knownAnswers drops answers for questions not in the test and empty values.
func knownAnswers(questions []model.Question, answers map[string]string) map[string]string {
	out := make(map[string]string, len(answers))
	for _, q := range questions {
		if v, ok := answers[q.ID]; ok && v != "" {
			out[q.ID] = v
		}
	}
	return out
}
