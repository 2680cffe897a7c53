// Package logging wires up the process-wide slog logger: a tinted console
// handler, optionally fanned out to a timestamped JSON log file.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
)

// Setup installs the global slog logger. With an empty logOutputDir only
// the console handler is active; otherwise every record also lands in a
// fresh darktool_<timestamp>.log under that directory.
func Setup(levelStr, logOutputDir string) error {
	level := parseLevel(levelStr)
	console := tint.NewHandler(os.Stdout, &tint.Options{Level: level})

	if logOutputDir == "" {
		slog.SetDefault(slog.New(console))
		return nil
	}

	file, path, err := openLogFile(os.ExpandEnv(logOutputDir))
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slogmulti.Fanout(
		console,
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}),
	)))
	fmt.Fprintf(os.Stderr, "Logging to file: %s\n", path)
	return nil
}

// openLogFile creates dir if needed and opens a timestamped log file in it.
func openLogFile(dir string) (*os.File, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create log output directory: %w", err)
	}

	name := fmt.Sprintf("darktool_%s.log", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create log file: %w", err)
	}
	return file, path, nil
}

func parseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
