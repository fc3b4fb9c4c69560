package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/richinex/inkwell/agent"
	"github.com/richinex/inkwell/team"
)

const wrapWidth = 100

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
	faintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

// renderMarkdown renders text for the terminal, or returns it unchanged
// when rendering fails.
func renderMarkdown(text string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return out
}

func printTitle(w io.Writer, title string) {
	fmt.Fprintln(w, titleStyle.Render(title))
}

func printStatus(w io.Writer, ok bool, msg string) {
	style := okStyle
	if !ok {
		style = errStyle
	}
	fmt.Fprintln(w, style.Render(msg))
}

func printFaint(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, faintStyle.Render(fmt.Sprintf(format, args...)))
}

const (
	maxAgentObservationLen = 400
	maxTeamObservationLen  = 200
)

func printSteps(w io.Writer, steps []agent.Step, maxObservation int) {
	printFaint(w, "--- Steps ---")
	for _, step := range steps {
		fmt.Fprintf(w, "[%d] %s\n", step.Iteration, step.Thought)
		if step.Action != nil {
			fmt.Fprintf(w, "    Action: %s\n", *step.Action)
		}
		if step.Observation != nil {
			fmt.Fprintf(w, "    Observation: %s\n", truncateString(*step.Observation, maxObservation))
		}
	}
	printFaint(w, "-------------")
}

func printMemberResponses(w io.Writer, responses []team.MemberResponse) {
	for _, r := range responses {
		mark := okStyle.Render("✓")
		if !r.Success {
			mark = errStyle.Render("✗")
		}
		fmt.Fprintf(w, "%s %s: %s\n", mark, titleStyle.Render(r.Member), truncateString(r.Task, maxTeamObservationLen))
		fmt.Fprintln(w, renderMarkdown(r.Content))
	}
}

func printTokenStats(w io.Writer, stats team.TokenStats) {
	printFaint(w, "LLM calls: %d  prompt tokens: %d  completion tokens: %d  total: %d",
		stats.LLMCalls, stats.PromptTokens, stats.CompletionTokens, stats.TotalTokens)
}

// truncateString truncates s to maxLen runes.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

func isFailureText(text string) bool {
	return strings.HasPrefix(text, "❌")
}
