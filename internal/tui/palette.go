package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/stemsi/aptiq-proctor/internal/session"
)

const paletteColumns = 10

// renderPalette draws the question grid and its legend.
func renderPalette(v session.View) string {
	if len(v.Palette) == 0 {
		return ""
	}

	var rows []string
	var row []string
	for _, item := range v.Palette {
		cell := paletteStyles[string(item.Status)].Render(fmt.Sprintf("%3d", item.Index+1))
		row = append(row, cell)
		if len(row) == paletteColumns {
			rows = append(rows, strings.Join(row, " "))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, strings.Join(row, " "))
	}

	counts := map[session.ItemStatus]int{}
	for _, item := range v.Palette {
		counts[item.Status]++
	}
	legend := fmt.Sprintf("%s %d  %s %d  %s %d  %s %d",
		paletteStyles["answered"].Render(" answered "), v.AnsweredCount,
		paletteStyles["flagged"].Render(" flagged "), v.FlaggedCount,
		paletteStyles["visited"].Render("visited"), counts[session.ItemVisited],
		paletteStyles["not-visited"].Render("not visited"), counts[session.ItemNotVisited],
	)

	return lipgloss.JoinVertical(lipgloss.Left, strings.Join(rows, "\n"), "", legend)
}
