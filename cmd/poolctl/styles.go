package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	// Color palette
	primaryColor = lipgloss.Color("#7D56F4")
	successColor = lipgloss.Color("#04B575")
	warningColor = lipgloss.Color("#FFA500")

	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	okStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(successColor)

	warnStyle = lipgloss.NewStyle().
			Foreground(warningColor)
)

// disableColor forces plain output, for --no-color and non-terminal use.
func disableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// heading prints a styled section title.
func heading(title string) {
	printInfo("%s\n", headingStyle.Render(title))
}
