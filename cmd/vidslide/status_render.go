package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"vidslide/internal/batch"
	"vidslide/internal/textutil"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

var statusStyles = map[statusKind]struct {
	label string
	color text.Colors
}{
	statusInfo:  {"INFO", text.Colors{text.FgBlue}},
	statusOK:    {"OK", text.Colors{text.FgGreen}},
	statusWarn:  {"WARN", text.Colors{text.FgYellow}},
	statusError: {"ERROR", text.Colors{text.FgRed}},
}

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

// paint applies the colour of kind when colorize is set.
func paint(kind statusKind, s string, colorize bool) string {
	if !colorize {
		return s
	}
	return statusStyles[kind].color.Sprint(s)
}

// renderStatusLine renders "  Label:   [KIND] message" padded for alignment.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	badge := "[" + statusStyles[kind].label + "]"
	if message != "" {
		badge += " " + message
	}
	return paint(kind, fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", badge), colorize)
}

func statusKindFromSeverity(severity string) statusKind {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "ok":
		return statusOK
	case "warn":
		return statusWarn
	case "error":
		return statusError
	default:
		return statusInfo
	}
}

func taskStatusKind(status batch.Status) statusKind {
	switch status {
	case batch.StatusDone:
		return statusOK
	case batch.StatusError:
		return statusError
	case batch.StatusPaused, batch.StatusCancelled, batch.StatusSkipped:
		return statusWarn
	default:
		return statusInfo
	}
}

// colorizeStatus renders a task status label for terminal tables.
func colorizeStatus(status batch.Status, colorize bool) string {
	return paint(taskStatusKind(status), textutil.Humanize(string(status)), colorize)
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	return []string{
		paint(statusInfo, line, colorize),
		paint(statusInfo, strings.Repeat("-", len(line)), colorize),
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
