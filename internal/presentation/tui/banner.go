package tui

import (
	"fmt"
	"io"

	"github.com/aretw0/consult/pkg/domain"
	"github.com/muesli/termenv"
)

// PrintBanner writes the consult banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"   ___ ___  _ __  ___ _   _| | |_", "#818cf8"},
		{"  / __/ _ \\| '_ \\/ __| | | | | __|", "#a78bfa"},
		{" | (_| (_) | | | \\__ \\ |_| | | |_", "#c084fc"},
		{"  \\___\\___/|_| |_|___/\\__,_|_|\\__|", "#e879f9"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}

var stateColors = map[domain.DisplayState]string{
	domain.StateFired:      "#2563eb",
	domain.StateEvaluating: "#fb923c",
	domain.StateUnfireable: "#dc2626",
	domain.StatePending:    "#9ca3af",
}

// StateBadge returns the colored label for a rule display state.
func StateBadge(s domain.DisplayState) string {
	p := termenv.ColorProfile()
	return termenv.String(" " + StateLabel(s) + " ").
		Foreground(p.Color("#ffffff")).
		Background(p.Color(stateColors[s])).
		String()
}

var phaseColors = map[domain.Phase]string{
	domain.PhaseIdle:           "#9ca3af",
	domain.PhaseAwaitingAnswer: "#818cf8",
	domain.PhaseFinished:       "#16a34a",
}

// PhaseBadge returns the colored label for a session phase.
func PhaseBadge(p domain.Phase) string {
	profile := termenv.ColorProfile()
	return termenv.String("[" + string(p) + "]").Foreground(profile.Color(phaseColors[p])).Bold().String()
}
