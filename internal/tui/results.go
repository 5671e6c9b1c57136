package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/stemsi/aptiq-proctor/internal/model"
	"github.com/stemsi/aptiq-proctor/internal/session"
)

var triggerText = map[session.Trigger]string{
	session.TriggerUser:       "Submitted.",
	session.TriggerTimeout:    "Time is up. Your answers were submitted automatically.",
	session.TriggerViolations: "Too many proctoring warnings. The test was submitted automatically.",
}

// RenderResults draws the score card with its section breakdown.
func RenderResults(res *model.SubmitResult, trigger session.Trigger) string {
	var b strings.Builder
	if msg, ok := triggerText[trigger]; ok {
		b.WriteString(mutedStyle.Render(msg))
		b.WriteString("\n\n")
	}
	if res == nil {
		b.WriteString("No result was returned.\n")
		return b.String()
	}

	b.WriteString(scoreStyle.Render(fmt.Sprintf("%s / %d  (%.2f%%)", formatScore(res.Score), res.TotalMarks, res.Percentage)))
	b.WriteString("\n")
	if res.TotalQuestions > 0 {
		b.WriteString(fmt.Sprintf("Answered %d of %d questions\n", res.Answered, res.TotalQuestions))
	}

	if len(res.Breakdown) > 0 {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("Sections"))
		b.WriteString("\n")
		names := make([]string, 0, len(res.Breakdown))
		for name := range res.Breakdown {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			s := res.Breakdown[name]
			b.WriteString(fmt.Sprintf("  %-16s %d/%d  %5.1f%%\n", name, s.Correct, s.Total, s.Accuracy()))
		}
	}
	return b.String()
}

// RenderReview lists every question with the student's and correct answer.
func RenderReview(r *model.Review) string {
	var b strings.Builder
	b.WriteString(RenderResults(r.Result(), ""))
	b.WriteString("\n")

	for i, q := range r.Questions {
		mark := "⏭"
		switch {
		case q.StudentAnswer == nil || *q.StudentAnswer == "":
		case q.IsCorrect:
			mark = "✅"
		default:
			mark = "❌"
		}

		header := fmt.Sprintf("%s %d. %s", mark, i+1, q.QuestionText)
		lines := []string{header}
		lines = append(lines, mutedStyle.Render("   Your answer: "+describeAnswer(q.Question, q.StudentAnswer)))
		lines = append(lines, goodStyle.Render("   Correct:     "+describeAnswer(q.Question, &q.CorrectAnswer)))
		if q.Explanation != "" {
			lines = append(lines, mutedStyle.Render("   "+q.Explanation))
		}
		b.WriteString(lipgloss.JoinVertical(lipgloss.Left, lines...))
		b.WriteString("\n\n")
	}
	return b.String()
}

// describeAnswer shows an MCQ answer as "B) text".
func describeAnswer(q model.Question, ans *string) string {
	if ans == nil || *ans == "" {
		return "(skipped)"
	}
	if q.IsMCQ() {
		if idx := model.OptionIndex(*ans); idx >= 0 && idx < len(q.Options) {
			return fmt.Sprintf("%s) %s", *ans, q.Options[idx].Text)
		}
	}
	return *ans
}

func formatScore(s float64) string {
	if s == float64(int64(s)) {
		return fmt.Sprintf("%d", int64(s))
	}
	return fmt.Sprintf("%.2f", s)
}

// RenderInstructions draws the screen shown before a test starts.
func RenderInstructions(t *model.Test, maxWarnings int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(t.Title))
	b.WriteString("\n")
	if t.Description != "" {
		b.WriteString(t.Description + "\n")
	}
	b.WriteString("\n")

	limit := "default"
	if t.TimeLimitMinutes > 0 {
		limit = fmt.Sprintf("%d minutes", t.TimeLimitMinutes)
	}
	b.WriteString(fmt.Sprintf("Time limit:  %s\n", limit))
	b.WriteString(fmt.Sprintf("Questions:   %d\n", t.QuestionCount))
	b.WriteString(fmt.Sprintf("Total marks: %d\n", t.TotalMarks))
	if t.Instructions != "" {
		b.WriteString("\n" + strings.TrimSpace(t.Instructions) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf(
		"Leaving the terminal, ctrl+z and copy/paste shortcuts are recorded. The test is submitted after %d warnings.",
		maxWarnings)))
	b.WriteString("\n")
	return b.String()
}
