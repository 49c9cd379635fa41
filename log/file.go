// Package log implements additional logrus outputs for the server.
// Because stdout carries the protocol, file logging is the usual way to
// get debug output from a live editor session.
package log

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// fileHook writes entries to a local file through a buffered writer on its
// own goroutine. The hand-off channel is unbuffered, so Fire waits until
// that goroutine takes the entry.
type fileHook struct {
	fallbackLogger logrus.FieldLogger
	loglines       chan []byte
	path           string
	w              io.WriteCloser
	bw             *bufio.Writer
	levels         []logrus.Level
	done           chan struct{}
}

// FileHookFromConfigLine returns a logrus hook for a config line of the
// form `file=/path/to/server.log,level=info`.
func FileHookFromConfigLine(
	ctx context.Context, fallbackLogger logrus.FieldLogger, line string,
) (logrus.Hook, error) {
	hook := &fileHook{
		fallbackLogger: fallbackLogger,
		levels:         logrus.AllLevels,
		done:           make(chan struct{}),
	}

	parts := strings.SplitN(line, "=", 2)
	if parts[0] != "file" {
		return nil, fmt.Errorf("logfile configuration should be in the form `file=path-to-local-file` but is `%s`", line)
	}
	if err := hook.parseArgs(line); err != nil {
		return nil, err
	}
	if err := hook.openFile(); err != nil {
		return nil, err
	}
	hook.loglines = hook.loop(ctx)
	return hook, nil
}

func (h *fileHook) parseArgs(line string) error {
	tokens, err := tokenize(line)
	if err != nil {
		return err
	}
	for _, token := range tokens {
		switch token.key {
		case "file":
			if token.value == "" {
				return fmt.Errorf("filepath must not be empty")
			}
			h.path = token.value
		case "level":
			h.levels, err = parseLevels(token.value)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown logfile config key %s", token.key)
		}
	}
	return nil
}

// openFile opens the log file, creating missing directories.
func (h *fileHook) openFile() error {
	if _, err := os.Stat(filepath.Dir(h.path)); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
			return fmt.Errorf("failed to create log file directory %q", filepath.Dir(h.path))
		}
	}
	file, err := os.OpenFile(h.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600) //nolint:gosec
	if err != nil {
		return fmt.Errorf("failed to open logfile %s: %w", h.path, err)
	}
	h.w = file
	h.bw = bufio.NewWriter(file)
	return nil
}

// loop starts the writer goroutine and returns its input channel. The
// goroutine drains until ctx is done, then flushes and closes the file.
func (h *fileHook) loop(ctx context.Context) chan []byte {
	loglines := make(chan []byte)
	go func() {
		defer close(h.done)
		for {
			select {
			case entry := <-loglines:
				if _, err := h.bw.Write(entry); err != nil {
					h.fallbackLogger.Errorf("failed to write a log message to a logfile: %s", err)
				}
			case <-ctx.Done():
				if err := h.bw.Flush(); err != nil {
					h.fallbackLogger.Errorf("failed to flush logfile: %s", err)
				}
				if err := h.w.Close(); err != nil {
					h.fallbackLogger.Errorf("failed to close logfile: %s", err)
				}
				return
			}
		}
	}()
	return loglines
}

// Fire implements logrus.Hook.
func (h *fileHook) Fire(entry *logrus.Entry) error {
	message, err := entry.Bytes()
	if err != nil {
		return fmt.Errorf("failed to get a log entry bytes: %w", err)
	}
	h.loglines <- message
	return nil
}

// Levels implements logrus.Hook.
func (h *fileHook) Levels() []logrus.Level {
	return h.levels
}

// Done exposes the writer-goroutine completion channel so the caller can
// wait for the final flush on shutdown.
func (h *fileHook) Done() <-chan struct{} { return h.done }
