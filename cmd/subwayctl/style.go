package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/you/subway/models"
)

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true)
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	stationPill = lipgloss.NewStyle().Padding(0, 1).Bold(true)
)

// lineColor accepts hex colours as given; anything else renders uncoloured
func lineColor(c string) lipgloss.TerminalColor {
	if strings.HasPrefix(c, "#") {
		return lipgloss.Color(c)
	}
	return lipgloss.NoColor{}
}

func printStations(w io.Writer, stations []models.Station) {
	if len(stations) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No stations registered."))
		return
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%d stations", len(stations))))
	for _, st := range stations {
		fmt.Fprintf(w, "%s %s\n", idStyle.Render(fmt.Sprintf("%4d", st.ID)), st.Name)
	}
}

func printLineSummary(w io.Writer, l models.LineDetails) {
	name := lipgloss.NewStyle().Foreground(lineColor(l.Color)).Bold(true).Render(l.Name)
	ends := ""
	if n := len(l.Stations); n > 0 {
		ends = fmt.Sprintf("%s -> %s", l.Stations[0].Name, l.Stations[n-1].Name)
	}
	fmt.Fprintf(w, "%s %s %s %s\n",
		idStyle.Render(fmt.Sprintf("%4d", l.ID)), name, ends,
		mutedStyle.Render(fmt.Sprintf("(%d stations, %d)", len(l.Stations), l.TotalDistance)))
}

// printLinePath draws the ordered stations joined by section distances
func printLinePath(w io.Writer, l *models.LineDetails) {
	color := lineColor(l.Color)
	fmt.Fprintln(w, titleStyle.Render(l.Name)+" "+mutedStyle.Render(l.Color))

	pill := stationPill.Foreground(color)
	var b strings.Builder
	for i, st := range l.Stations {
		if i > 0 {
			d := l.Sections[i-1].Distance().Value()
			b.WriteString(lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf(" -%d- ", d)))
		}
		b.WriteString(pill.Render(st.Name))
	}
	fmt.Fprintln(w, b.String())
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("total distance %d", l.TotalDistance)))
}

func printOK(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, okStyle.Render(fmt.Sprintf(format, args...)))
}
