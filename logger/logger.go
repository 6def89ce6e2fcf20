package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

const logTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// levelVar holds the current log level; defaults to Info.
var levelVar slog.LevelVar

// ColorHandler prefixes each record with a colored timestamp, level, and
// message, then delegates the remaining attrs to a text handler.
type ColorHandler struct {
	handler slog.Handler
	writer  io.Writer
}

func (h *ColorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *ColorHandler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String()
	var color string
	switch r.Level {
	case slog.LevelError:
		color = colorRed + colorBold
		level = "ERROR"
	case slog.LevelWarn:
		color = colorYellow + colorBold
		level = "WARN"
	case slog.LevelInfo:
		color = colorBlue
		level = "INFO"
	case slog.LevelDebug:
		color = colorGray
		level = "DEBUG"
	}

	// Re-emit only the attrs; time/level/msg are printed in our prefix.
	newRecord := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		newRecord.AddAttrs(a)
		return true
	})

	ts := r.Time.Format(logTimeLayout)
	if shouldUseColors() {
		fmt.Fprintf(h.writer, "%s%s%s %s%s%s %s%s%s ",
			colorGray, ts, colorReset,
			color, level, colorReset,
			colorCyan, r.Message, colorReset,
		)
	} else {
		fmt.Fprintf(h.writer, "%s %s %s ", ts, level, r.Message)
	}

	return h.handler.Handle(ctx, newRecord)
}

func (h *ColorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ColorHandler{
		handler: h.handler.WithAttrs(attrs),
		writer:  h.writer,
	}
}

func (h *ColorHandler) WithGroup(name string) slog.Handler {
	return &ColorHandler{
		handler: h.handler.WithGroup(name),
		writer:  h.writer,
	}
}

var (
	logger  *slog.Logger
	logFile *os.File
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// dualWriter mirrors colored output to stdout and a stripped copy to a file.
type dualWriter struct {
	color io.Writer
	plain io.Writer
}

func (w dualWriter) Write(p []byte) (int, error) {
	if w.color != nil {
		if _, err := w.color.Write(p); err != nil {
			return 0, err
		}
	}
	if w.plain != nil {
		clean := ansiRegex.ReplaceAll(p, nil)
		if _, err := w.plain.Write(clean); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func init() {
	logWriter := io.Writer(os.Stdout)
	if path := strings.TrimSpace(os.Getenv("LOG_FILE")); path != "" {
		dir := filepath.Dir(path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				fmt.Fprintf(os.Stderr, "failed to create log directory %s: %v\n", dir, err)
			}
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
		} else {
			logFile = f
			logWriter = dualWriter{color: os.Stdout, plain: f}
		}
	}

	handler := &ColorHandler{
		handler: slog.NewTextHandler(logWriter, &slog.HandlerOptions{
			Level:       &levelVar,
			ReplaceAttr: replaceAttrFunc,
		}),
		writer: logWriter,
	}

	logger = slog.New(handler)

	levelVar.Set(slog.LevelInfo)
	slog.SetDefault(logger)
}

// shouldUseColors determines if ANSI colors should be used.
func shouldUseColors() bool {
	return os.Getenv("NO_COLOR") == ""
}

// replaceAttrFunc customizes attribute formatting.
func replaceAttrFunc(groups []string, a slog.Attr) slog.Attr {
	// Drop default time/level/msg; we print those in our prefix
	switch a.Key {
	case slog.TimeKey, slog.LevelKey, slog.MessageKey:
		return slog.Attr{}
	}

	if a.Key == "error" || a.Key == "err" {
		if shouldUseColors() && a.Value.Kind() == slog.KindString {
			a.Value = slog.StringValue(colorRed + a.Value.String() + colorReset)
		}
	}
	return a
}

// Configure sets the global logger level from a string value.
// Supported: "error", "warn", "info", "debug".
func Configure(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		levelVar.Set(slog.LevelError)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "info", "":
		levelVar.Set(slog.LevelInfo)
	case "debug":
		levelVar.Set(slog.LevelDebug)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

// L returns the global logger.
func L() *slog.Logger { return logger }
