package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/antiplagiat/textcheck/internal/models"
	"github.com/antiplagiat/textcheck/internal/report"
)

func printSummary(w io.Writer, view *report.View, result *models.CheckResult) {
	fmt.Fprintf(w, "Task:        %s\n", view.TaskID)
	fmt.Fprintf(w, "Originality: %.1f%% (%s)\n", view.Originality, view.Band)
	fmt.Fprintf(w, "Words:       %d\n", view.TotalWords)
	fmt.Fprintf(w, "Characters:  %d\n", view.TotalChars)
	fmt.Fprintf(w, "Matches:     %d", len(view.Matches))
	if len(view.Matches) > 0 {
		fmt.Fprintf(w, " (%.1f%% of the text, max similarity %.0f%%)", view.Stats.Coverage*100, view.Stats.MaxSimilarity*100)
	}
	fmt.Fprintln(w)
	if result != nil && result.AIPowered {
		fmt.Fprintln(w, "Checked with semantic AI analysis")
	}

	if len(view.Expanded) > 0 {
		fmt.Fprintln(w, "\nMatches:")
		for _, m := range view.Expanded {
			fmt.Fprintf(w, "  [%d-%d] %3.0f%% %-11s %s\n", m.Start, m.End, m.Similarity*100, m.Type, oneLine(m.Text))
		}
		if view.HiddenMatches > 0 {
			fmt.Fprintf(w, "  ... %d more (use -json or -html for the full list)\n", view.HiddenMatches)
		}
	}

	if len(view.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for i, s := range view.Sources {
			fmt.Fprintf(w, "  %d. %s (%s) matches: %d, avg %.0f%%\n", i+1, s.Title, s.URL, s.MatchCount, s.AvgSimilarity*100)
		}
	}
}

// oneLine collapses whitespace and cuts long excerpts for table output.
func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > 60 {
		return string(runes[:60]) + "..."
	}
	return s
}
