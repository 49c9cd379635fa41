package cmd

import (
	"bytes"
	"io"
	"sync"

	"github.com/fatih/color"
)

// consoleWriter syncs writes with a mutex and, when the output is a TTY,
// clears to end-of-line before newlines so colored diagnostics never
// leave artifacts behind.
type consoleWriter struct {
	writer io.Writer
	isTTY  bool
	mutex  *sync.Mutex
}

func (w *consoleWriter) Write(p []byte) (n int, err error) {
	origLen := len(p)
	if w.isTTY {
		p = bytes.ReplaceAll(p, []byte{'\n'}, []byte{'\x1b', '[', '0', 'K', '\n'})
	}

	w.mutex.Lock()
	n, err = w.writer.Write(p)
	w.mutex.Unlock()

	if err != nil && n < origLen {
		return n, err
	}
	return origLen, err
}

// getColor returns the requested color, or an uncolored object, depending
// on noColor. The explicit EnableColor/DisableColor calls are needed
// because the library checks os.Stdout itself otherwise.
func getColor(noColor bool, attributes ...color.Attribute) *color.Color {
	if noColor {
		c := color.New()
		c.DisableColor()
		return c
	}
	c := color.New(attributes...)
	c.EnableColor()
	return c
}
