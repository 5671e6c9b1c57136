package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent  = lipgloss.Color("#3498db")
	colorMuted   = lipgloss.Color("#7f8c8d")
	colorGood    = lipgloss.Color("#27ae60")
	colorWarn    = lipgloss.Color("#f39c12")
	colorBad     = lipgloss.Color("#e74c3c")
	colorFlag    = lipgloss.Color("#9b59b6")
	colorInverse = lipgloss.Color("#ffffff")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	timerStyle   = lipgloss.NewStyle().Bold(true)
	urgentStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorBad)
	badgeStyle   = lipgloss.NewStyle().Padding(0, 1).Foreground(colorInverse).Background(colorWarn)
	bannerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(colorInverse).Background(colorBad)
	errorStyle   = lipgloss.NewStyle().Foreground(colorBad)
	goodStyle    = lipgloss.NewStyle().Foreground(colorGood)
	selectedOpt  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	questionBox  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorMuted).Padding(0, 1)
	headerStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, true, false).BorderForeground(colorMuted)
	scoreStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Padding(0, 1).Border(lipgloss.DoubleBorder())
	sectionStyle = lipgloss.NewStyle().Bold(true)

	paletteStyles = map[string]lipgloss.Style{
		"current":     lipgloss.NewStyle().Bold(true).Foreground(colorInverse).Background(colorAccent),
		"flagged":     lipgloss.NewStyle().Foreground(colorInverse).Background(colorFlag),
		"answered":    lipgloss.NewStyle().Foreground(colorInverse).Background(colorGood),
		"visited":     lipgloss.NewStyle().Foreground(colorWarn),
		"not-visited": lipgloss.NewStyle().Foreground(colorMuted),
	}
)
