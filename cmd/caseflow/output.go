package main

import (
	"fmt"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

// printStatus prints an indented "label: value" line.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

// statusColor picks the color for a conversation status.
func statusColor(status string) string {
	switch status {
	case "closed":
		return colorGreen
	case "escalated":
		return colorRed
	case "", "new":
		return colorYellow
	default:
		return colorCyan
	}
}

// printOutcome reports a turn result with a marker matching its outcome.
func printOutcome(outcome, msg string) {
	switch outcome {
	case "failed":
		printError("%s", msg)
	case "ignored", "claim_lost", "escalated":
		printWarning("%s", msg)
	default:
		printSuccess("%s", msg)
	}
}
