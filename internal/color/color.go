package color

import (
	"fmt"
	"io"
	"os"
	"sync"

	"sumctl/pkg/logging"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Semantic palette shared by every console renderer.
var (
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#10B981"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#EF4444"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#F59E0B"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#2563EB", Dark: "#3B82F6"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
)

var (
	SuccessStyle   = lipgloss.NewStyle().Foreground(ColorSuccess)
	ErrorStyle     = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	WarningStyle   = lipgloss.NewStyle().Foreground(ColorWarning)
	InfoStyle      = lipgloss.NewStyle().Foreground(ColorInfo)
	MutedStyle     = lipgloss.NewStyle().Foreground(ColorMuted)
	SubsystemStyle = lipgloss.NewStyle().Foreground(ColorMuted).Faint(true)
)

// Initialize sets the background assumption used by the adaptive colors.
// It also honours NO_COLOR by switching lipgloss to the ASCII profile.
func Initialize(isDarkMode bool) {
	lipgloss.SetHasDarkBackground(isDarkMode)
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// InitializeFromEnv applies SUMCTL_THEME when set, otherwise keeps lipgloss' detection.
func InitializeFromEnv() {
	switch os.Getenv("SUMCTL_THEME") {
	case "dark":
		Initialize(true)
	case "light":
		Initialize(false)
	default:
		Initialize(lipgloss.HasDarkBackground())
	}
}

// StyleFor returns the style used to render a given severity.
func StyleFor(level logging.LogLevel) lipgloss.Style {
	switch level {
	case logging.LevelSuccess:
		return SuccessStyle
	case logging.LevelWarn:
		return WarningStyle
	case logging.LevelError:
		return ErrorStyle
	case logging.LevelDebug:
		return MutedStyle
	default:
		return InfoStyle
	}
}

// symbolFor mirrors the glyphs the browser terminal shows for each severity.
func symbolFor(level logging.LogLevel) string {
	switch level {
	case logging.LevelSuccess:
		return "✓"
	case logging.LevelWarn:
		return "⚠"
	case logging.LevelError:
		return "✗"
	default:
		return "•"
	}
}

// FormatEntry renders one log entry as a single styled console line.
func FormatEntry(e logging.LogEntry) string {
	line := fmt.Sprintf("%s %s %s",
		MutedStyle.Render(e.Timestamp.Format("15:04:05")),
		SubsystemStyle.Render("["+e.Subsystem+"]"),
		StyleFor(e.Level).Render(symbolFor(e.Level)+" "+e.Message),
	)
	if e.Err != nil {
		line += " " + ErrorStyle.Render(e.Err.Error())
	}
	return line
}

// ConsoleSink returns a logging sink that writes styled lines to w.
func ConsoleSink(w io.Writer) logging.Sink {
	var mu sync.Mutex
	return func(e logging.LogEntry) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(w, FormatEntry(e))
	}
}
