package session

import (
	"sort"
	"time"

	"github.com/stemsi/aptiq-proctor/internal/clock"
	"github.com/stemsi/aptiq-proctor/internal/model"
)

const (
	urgentSeconds = 300
	warningBanner = 3 * time.Second
)

// ItemStatus is a palette entry's state.
type ItemStatus string

const (
	ItemCurrent    ItemStatus = "current"
	ItemFlagged    ItemStatus = "flagged"
	ItemAnswered   ItemStatus = "answered"
	ItemVisited    ItemStatus = "visited"
	ItemNotVisited ItemStatus = "not-visited"
)

// PaletteItem is one question button in the palette.
type PaletteItem struct {
	Index  int
	Status ItemStatus
}

// View is a read-only copy of the controller state for rendering.
type View struct {
	Status  Status
	Failure Failure
	// Err is set only for user-visible failures (start, submit).
	Err error

	Test      model.Test
	AttemptID string
	Questions []model.Question

	CurrentIndex    int
	Current         *model.Question
	CurrentAnswer   string
	CurrentAnswered bool
	CurrentFlagged  bool

	Palette       []PaletteItem
	AnsweredCount int
	FlaggedCount  int

	TimeLeft     int
	TimeLeftText string
	Urgent       bool

	Warnings       int
	MaxWarnings    int
	WarningMessage string

	Submitting bool
	Submitted  bool
	Trigger    Trigger
	Result     *model.SubmitResult
}

// Snapshot returns the current View.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Status:        c.status,
		Failure:       c.failure,
		Err:           c.err,
		Test:          c.test,
		AttemptID:     c.attemptID,
		Questions:     c.questions,
		CurrentIndex:  c.current,
		AnsweredCount: len(c.answers),
		FlaggedCount:  len(c.flagged),
		TimeLeft:      c.timeLeft,
		TimeLeftText:  clock.FormatMMSS(c.timeLeft),
		Urgent:        c.timeLeft < urgentSeconds,
		Warnings:      c.warnings,
		MaxWarnings:   c.maxWarnings,
		Submitting:    c.status == StatusSubmitting,
		Submitted:     c.status == StatusSubmitted,
		Trigger:       c.trigger,
		Result:        c.result,
	}

	if c.warningMessage != "" && c.now().Sub(c.warningAt) < warningBanner {
		v.WarningMessage = c.warningMessage
	}

	if c.current >= 0 && c.current < len(c.questions) {
		q := c.questions[c.current]
		v.Current = &q
		v.CurrentAnswer, v.CurrentAnswered = c.answers[q.ID]
		v.CurrentFlagged = c.flagged[c.current]
	}

	v.Palette = make([]PaletteItem, len(c.questions))
	for i := range c.questions {
		v.Palette[i] = PaletteItem{Index: i, Status: c.itemStatus(i)}
	}
	return v
}

// itemStatus applies current > flagged > answered > visited > not-visited.
func (c *Controller) itemStatus(idx int) ItemStatus {
	switch {
	case idx == c.current:
		return ItemCurrent
	case c.flagged[idx]:
		return ItemFlagged
	case c.answered(idx):
		return ItemAnswered
	case c.visited[idx]:
		return ItemVisited
	default:
		return ItemNotVisited
	}
}

func (c *Controller) answered(idx int) bool {
	_, ok := c.answers[c.questions[idx].ID]
	return ok
}

// Answers returns a copy of the answer map.
func (c *Controller) Answers() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.answers))
	for k, v := range c.answers {
		out[k] = v
	}
	return out
}

// Flagged returns the flagged question indices in order.
func (c *Controller) Flagged() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, 0, len(c.flagged))
	for idx := range c.flagged {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Status returns the lifecycle state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}
