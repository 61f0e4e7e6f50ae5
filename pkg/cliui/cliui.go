// Package cliui provides terminal output helpers (spinners, step marks,
// markdown rendering, chat role labels) for classroom CLI commands.
package cliui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

var (
	SuccessMark  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	StepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	KeyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	ValueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	DimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))

	userLabel      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render("you")
	assistantLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170")).Render("ai")
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	numberStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// spinnerFrames is the braille dot spinner.
var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// IsTerminal reports whether w is a terminal. Styled output and spinners are
// only written to terminals.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}

// Step prints an animated spinner while fn runs, then replaces it with
// a ✓ or ✗ checkmark and elapsed time. On non-terminals fn runs silently.
func Step(w io.Writer, msg string, fn func() error) error {
	if !IsTerminal(w) {
		return fn()
	}

	done := make(chan struct{})
	var mu sync.Mutex

	// Run spinner animation in background
	go func() {
		frame := 0
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for {
			mu.Lock()
			fmt.Fprintf(w, "\r  %s %s",
				spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]),
				msg,
			)
			mu.Unlock()

			select {
			case <-done:
				return
			case <-ticker.C:
				frame++
			}
		}
	}()

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	close(done)

	// Clear the spinner line and print final result
	mu.Lock()
	fmt.Fprintf(w, "\r  %s %s %s\n",
		Mark(err),
		msg,
		StepStyle.Render(fmt.Sprintf("(%s)", FormatDuration(elapsed))),
	)
	mu.Unlock()

	return err
}

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// RenderMarkdown renders markdown content for terminal display using glamour.
func RenderMarkdown(content string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return content, err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}

	return rendered, nil
}

// Prompt returns the label printed before a message of the given role.
func Prompt(w io.Writer, role string) string {
	styled := IsTerminal(w)
	switch role {
	case "user":
		if !styled {
			return "you> "
		}
		return userLabel + "> "
	default:
		if !styled {
			return "ai> "
		}
		return assistantLabel + "> "
	}
}

// Notify renders a single user-facing error notification.
func Notify(w io.Writer, msg string) {
	if IsTerminal(w) {
		fmt.Fprintf(w, "%s %s\n", FailMark, errorStyle.Render(msg))
		return
	}
	fmt.Fprintf(w, "error: %s\n", msg)
}

// NumberedList renders items as a 1-based numbered list.
func NumberedList(w io.Writer, items []string) {
	styled := IsTerminal(w)
	width := len(fmt.Sprint(len(items)))
	for i, item := range items {
		n := fmt.Sprintf("%*d.", width, i+1)
		if styled {
			n = numberStyle.Render(n)
		}
		fmt.Fprintf(w, "%s %s\n", n, strings.TrimSpace(item))
	}
}
