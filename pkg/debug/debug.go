// Package debug provides selective debug logging on top of slog.
//
// Output is gated on two axes: a category set picking which subsystems
// log at all (DIRIGENT_DEBUG, comma-separated: provider, streaming, auth,
// tools, config, or all), and a verbosity level (DIRIGENT_LOG_LEVEL, up
// to TRACE for full wire payloads). Both can also come from the config
// file; the environment wins.
//
//	debug.Log("streaming", "chunk received", "choices", n)
package debug

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace sits below slog.LevelDebug. TRACE output includes full,
// untruncated request and response bodies.
const LevelTrace = slog.LevelDebug - 4

// categories is write-once: populated by init and Init, read everywhere
// else, so lookups take no lock.
var categories map[string]bool

func init() {
	categories = parseCategories(os.Getenv("DIRIGENT_DEBUG"))
}

// Init applies category and level settings from loaded config. Values
// already set through the environment keep precedence, so Init is safe to
// call after packages have started logging.
func Init(configCategories string, configLevel string) {
	cats := os.Getenv("DIRIGENT_DEBUG")
	if cats == "" {
		cats = configCategories
	}
	categories = parseCategories(cats)

	level := os.Getenv("DIRIGENT_LOG_LEVEL")
	if level == "" {
		level = configLevel
	}
	if level == "" {
		level = "INFO"
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})))
}

// Enabled reports whether the category is active.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message when the category is active, otherwise does
// nothing. Callers with expensive attribute construction should guard
// with Enabled first.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace emits at TRACE level; invisible unless the level is raised.
func Trace(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(nil, LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// TraceIsEnabled reports whether Trace output for the category would
// actually be written.
func TraceIsEnabled(category string) bool {
	if !Enabled(category) {
		return false
	}
	return slog.Default().Enabled(nil, LevelTrace)
}

// Raw writes text straight to stderr, bypassing slog formatting so wire
// payloads stay copy-pasteable. Gated on category plus TRACE.
func Raw(category string, text string) {
	if !TraceIsEnabled(category) {
		return
	}
	fmt.Fprintln(os.Stderr, text)
}

// ParseLevel converts a level name to a slog.Level. Unknown names fall
// back to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Categories lists the enabled categories, for status output.
func Categories() []string {
	var result []string
	for k := range categories {
		result = append(result, k)
	}
	return result
}

// Truncate shortens s to maxLen with an ellipsis marker.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	if s == "" {
		return m
	}
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
