package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/zipfetch/internal/orchestrator"
)

// printSummary writes every extracted member, one per line, under a
// "Downloaded files:" header, followed by the failed sources if any.
// results should already be sorted.
func printSummary(w io.Writer, results orchestrator.Results) {
	r := lipgloss.NewRenderer(w)
	headerStyle := r.NewStyle().Bold(true)
	failStyle := r.NewStyle().Foreground(lipgloss.Color("196"))
	kindStyle := r.NewStyle().Foreground(lipgloss.Color("244"))

	members := results.Members()
	fmt.Fprintln(w, headerStyle.Render("Downloaded files:"))
	if len(members) > 0 {
		fmt.Fprintln(w, strings.Join(members, "\n"))
	}

	failures := results.Failures()
	if len(failures) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Failed sources (%d of %d):", len(failures), len(results))))
	for _, out := range failures {
		fmt.Fprintf(w, "%s %s %s\n",
			failStyle.Render(out.Source),
			kindStyle.Render("["+out.Kind().String()+"]"),
			out.Err.Error())
	}
}
