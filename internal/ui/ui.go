// Package ui renders harness command output for the terminal: styled
// summaries of preflight, evaluation, and tuning artifacts, plus the
// markdown report echo. Color is used only when stdout is an
// interactive terminal and the environment does not opt out.
package ui

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}

	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	return false
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}

// ShouldColor decides whether output to w gets color: only for an
// interactive terminal, outside CI, with no explicit opt-out.
func ShouldColor(w io.Writer, noColorFlag bool) bool {
	if noColorFlag || DetectNoColor() || DetectCI() {
		return false
	}
	return IsTTY(w)
}

// ResolveStyles picks styles for w per ShouldColor.
func ResolveStyles(w io.Writer, noColorFlag bool) Styles {
	return GetStyles(!ShouldColor(w, noColorFlag))
}

// StyleMarkdown colors markdown headings, rules, and table frames for
// a terminal echo. The text itself is left untouched, so piping the
// output still yields valid markdown under NoColorStyles.
func StyleMarkdown(styles Styles, md string) string {
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "# "):
			lines[i] = styles.Header.Render(line)
		case strings.HasPrefix(line, "## "):
			lines[i] = styles.Section.Render(line)
		case strings.HasPrefix(line, "---"):
			lines[i] = styles.Dim.Render(line)
		case strings.HasPrefix(line, "|-") || strings.HasPrefix(line, "| Stage") ||
			strings.HasPrefix(line, "| Metric") || strings.HasPrefix(line, "| Trigger"):
			lines[i] = styles.Label.Render(line)
		case strings.HasPrefix(line, "```"):
			lines[i] = styles.Dim.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}
