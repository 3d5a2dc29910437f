package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type StderrColor uint8

const (
	ColorIfTerminal StderrColor = iota
	ColorNever
	ColorAlways
)

func ParseColor(text string) (StderrColor, bool) {
	switch strings.ToLower(text) {
	case "", "auto":
		return ColorIfTerminal, true
	case "false", "never":
		return ColorNever, true
	case "true", "always":
		return ColorAlways, true
	}
	return ColorIfTerminal, false
}

type TerminalInfo struct {
	IsTTY           bool
	UseColorEscapes bool
}

type Options struct {
	// Writer defaults to stderr
	Writer io.Writer
	Level  zerolog.Level
	Color  StderrColor

	// JSON switches from the console format to one JSON object per line
	JSON bool
}

// New builds the logger used by the build and the plugins. Colors follow the
// terminal unless forced on or off.
func New(options Options) zerolog.Logger {
	writer := options.Writer
	if writer == nil {
		writer = os.Stderr
	}

	if !options.JSON {
		writer = zerolog.ConsoleWriter{
			Out:        writer,
			NoColor:    !UseColor(writer, options.Color),
			TimeFormat: time.Kitchen,
		}
	}

	return zerolog.New(writer).Level(options.Level).With().Timestamp().Logger()
}

func UseColor(writer io.Writer, color StderrColor) bool {
	switch color {
	case ColorNever:
		return false
	case ColorAlways:
		return SupportsColorEscapes
	}
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	return GetTerminalInfo(file).UseColorEscapes
}

func hasNoColorEnvironmentVariable() bool {
	// https://no-color.org/
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return true
	}
	return false
}
