package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stemsi/aptiq-proctor/internal/model"
	"github.com/stemsi/aptiq-proctor/internal/monitor"
	"github.com/stemsi/aptiq-proctor/internal/session"
)

// Session is the part of session.Controller the exam screen drives.
type Session interface {
	Start(ctx context.Context) error
	Snapshot() session.View
	SelectAnswer(qIdx int, value string)
	SelectOption(qIdx, optIdx int)
	ClearAnswer(qIdx int)
	ToggleFlag(idx int)
	GoTo(idx int)
	Next()
	Prev()
	Submit()
	Updates() <-chan struct{}
	Close()
}

type (
	startedMsg struct{ err error }
	updateMsg  struct{}
)

// ExamModel is the test-taking screen.
type ExamModel struct {
	ctx  context.Context
	sess Session
	host *TerminalHost

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	input   textinput.Model
	editing bool

	view       session.View
	confirming bool
	left       bool
	width      int
}

// NewExamModel creates the screen. host may be nil when proctoring events
// are fed to the session some other way.
func NewExamModel(ctx context.Context, sess Session, host *TerminalHost) ExamModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorAccent)

	ti := textinput.New()
	ti.Placeholder = "Type your answer"
	ti.CharLimit = 4000
	ti.Width = 60
	ti.Prompt = "> "

	return ExamModel{
		ctx:     ctx,
		sess:    sess,
		host:    host,
		keys:    defaultKeyMap(),
		help:    help.New(),
		spinner: s,
		input:   ti,
		view:    sess.Snapshot(),
	}
}

// Snapshot returns the last session view the screen rendered.
func (m ExamModel) Snapshot() session.View { return m.view }

// Left reports whether the user left with ctrl+x before submitting.
func (m ExamModel) Left() bool { return m.left }

func (m ExamModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start(), m.waitForUpdate())
}

func (m ExamModel) start() tea.Cmd {
	return func() tea.Msg {
		return startedMsg{err: m.sess.Start(m.ctx)}
	}
}

func (m ExamModel) waitForUpdate() tea.Cmd {
	ch := m.sess.Updates()
	return func() tea.Msg {
		select {
		case <-ch:
			return updateMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m ExamModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case fullscreenMsg:
		if msg.on {
			return m, tea.EnterAltScreen
		}
		return m, tea.ExitAltScreen

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case startedMsg, updateMsg:
		m.refresh()
		if _, ok := msg.(updateMsg); ok {
			return m, m.waitForUpdate()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.FocusMsg, tea.BlurMsg, tea.MouseMsg:
		m.dispatch(msg)
		return m, nil

	case tea.KeyMsg:
		if m.dispatch(msg) == monitor.Block {
			return m, nil
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *ExamModel) dispatch(msg tea.Msg) monitor.Verdict {
	if m.host == nil {
		return monitor.Allow
	}
	return m.host.Dispatch(msg)
}

func (m *ExamModel) refresh() {
	m.view = m.sess.Snapshot()
	if m.view.Status != session.StatusInProgress && m.editing {
		m.editing = false
		m.input.Blur()
	}
}

func (m ExamModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Leave) {
		m.left = !m.view.Submitted
		m.sess.Close()
		return m, tea.Quit
	}

	switch m.view.Status {
	case session.StatusSubmitted:
		if msg.String() == "enter" || msg.String() == "q" {
			return m, tea.Quit
		}
		return m, nil
	case session.StatusStarting, session.StatusSubmitting:
		return m, nil
	case session.StatusFailed:
		if m.view.Failure == session.FailureStart {
			return m, nil
		}
	}

	if m.editing {
		return m.handleEditKey(msg)
	}

	if m.confirming {
		m.confirming = false
		if msg.String() == "y" || msg.String() == "enter" {
			m.sess.Submit()
		}
		return m, nil
	}

	idx := m.view.CurrentIndex
	switch {
	case key.Matches(msg, m.keys.Submit):
		m.confirming = true
		return m, nil
	case m.view.Status == session.StatusFailed:
		// Only navigation and retrying are open after a failed submission.
	case key.Matches(msg, m.keys.Flag):
		m.sess.ToggleFlag(idx)
		return m, nil
	case key.Matches(msg, m.keys.Clear):
		m.sess.ClearAnswer(idx)
		return m, nil
	case key.Matches(msg, m.keys.Edit) && m.view.Current != nil && !m.view.Current.IsMCQ():
		m.editing = true
		m.input.SetValue(m.view.CurrentAnswer)
		m.input.CursorEnd()
		return m, m.input.Focus()
	case m.view.Current != nil && m.view.Current.IsMCQ():
		if opt, ok := optionKey(msg.String(), len(m.view.Current.Options)); ok {
			m.sess.SelectOption(idx, opt)
			return m, nil
		}
	}

	switch {
	case key.Matches(msg, m.keys.Prev):
		m.sess.Prev()
	case key.Matches(msg, m.keys.Next):
		m.sess.Next()
	case key.Matches(msg, m.keys.First):
		m.sess.GoTo(0)
	case key.Matches(msg, m.keys.Last):
		m.sess.GoTo(len(m.view.Questions) - 1)
	}
	return m, nil
}

func (m ExamModel) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.sess.SelectAnswer(m.view.CurrentIndex, strings.TrimSpace(m.input.Value()))
		fallthrough
	case tea.KeyEsc:
		m.editing = false
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// optionKey maps "1".."9" and "a".."z" to an option index below n.
func optionKey(s string, n int) (int, bool) {
	if len(s) != 1 {
		return 0, false
	}
	c := s[0]
	var idx int
	switch {
	case c >= '1' && c <= '9':
		idx = int(c - '1')
	case c >= 'a' && c <= 'z':
		idx = int(c - 'a')
	default:
		return 0, false
	}
	if idx >= n {
		return 0, false
	}
	return idx, true
}

func (m ExamModel) View() string {
	v := m.view
	switch {
	case v.Status == session.StatusStarting:
		return fmt.Sprintf("\n %s Starting test...\n", m.spinner.View())
	case v.Status == session.StatusFailed && v.Failure == session.FailureStart:
		return fmt.Sprintf("\n %s\n\n %s\n", errorStyle.Render(errText(v.Err)), mutedStyle.Render("ctrl+x to leave"))
	case v.Submitted:
		return "\n" + RenderResults(v.Result, v.Trigger) + "\n" + mutedStyle.Render("enter to see the review") + "\n"
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")
	if v.WarningMessage != "" {
		b.WriteString(bannerStyle.Render("⚠ " + v.WarningMessage))
		b.WriteString("\n")
	}
	b.WriteString(m.question())
	b.WriteString("\n\n")
	b.WriteString(renderPalette(v))
	b.WriteString("\n\n")

	switch {
	case v.Submitting:
		b.WriteString(m.spinner.View() + " Submitting...")
	case v.Status == session.StatusFailed:
		b.WriteString(errorStyle.Render(errText(v.Err) + " Press s to try again."))
	case m.confirming:
		unanswered := len(v.Questions) - v.AnsweredCount
		b.WriteString(fmt.Sprintf("Submit the test? %d unanswered. (y/n)", unanswered))
	default:
		b.WriteString(m.help.View(m.keys))
	}
	b.WriteString("\n")
	return b.String()
}

func (m ExamModel) header() string {
	v := m.view
	timer := timerStyle
	if v.Urgent {
		timer = urgentStyle
	}
	parts := []string{
		titleStyle.Render(v.Test.Title),
		mutedStyle.Render(fmt.Sprintf("Question %d of %d", v.CurrentIndex+1, len(v.Questions))),
		timer.Render("⏱ " + v.TimeLeftText),
		badgeStyle.Render(fmt.Sprintf("%d/%d", v.Warnings, v.MaxWarnings)),
	}
	return headerStyle.Render(strings.Join(parts, "   "))
}

func (m ExamModel) question() string {
	v := m.view
	q := v.Current
	if q == nil {
		return mutedStyle.Render("This test has no questions.")
	}

	meta := []string{}
	if q.Section != "" {
		meta = append(meta, q.Section)
	}
	marks := q.Marks
	if marks == 0 {
		marks = 1
	}
	meta = append(meta, fmt.Sprintf("%d mark(s)", marks))
	if v.CurrentFlagged {
		meta = append(meta, "⚑ flagged")
	}

	lines := []string{mutedStyle.Render(strings.Join(meta, " · ")), "", q.QuestionText, ""}
	if q.IsMCQ() {
		for i, opt := range q.Options {
			letter := model.OptionLetter(i)
			line := fmt.Sprintf("  %s) %s", letter, opt.Text)
			if v.CurrentAnswered && v.CurrentAnswer == letter {
				line = selectedOpt.Render(fmt.Sprintf("● %s) %s", letter, opt.Text))
			}
			lines = append(lines, line)
		}
	} else if m.editing {
		lines = append(lines, m.input.View())
	} else if v.CurrentAnswered && v.CurrentAnswer != "" {
		lines = append(lines, selectedOpt.Render("> "+v.CurrentAnswer))
	} else {
		lines = append(lines, mutedStyle.Render("press enter to type an answer"))
	}

	box := questionBox
	if m.width > 4 {
		box = box.Width(m.width - 4)
	}
	return box.Render(strings.Join(lines, "\n"))
}

func errText(err error) string {
	if err == nil {
		return "Something went wrong."
	}
	return err.Error()
}
