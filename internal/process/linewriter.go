package process

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// lineWriter captures everything written to it, forwards it to an optional
// passthrough writer, and reports each complete line to onLine.
type lineWriter struct {
	mu      *sync.Mutex // shared between stdout and stderr writers
	capture bytes.Buffer
	pending []byte
	pass    io.Writer
	onLine  func(string)
}

func newLineWriter(mu *sync.Mutex, pass io.Writer, onLine func(string)) *lineWriter {
	return &lineWriter{mu: mu, pass: pass, onLine: onLine}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.capture.Write(p)
	if w.pass != nil {
		if _, err := w.pass.Write(p); err != nil {
			return 0, err
		}
	}
	if w.onLine == nil {
		return len(p), nil
	}

	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.onLine(strings.TrimRight(string(w.pending[:i]), "\r"))
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}

// flush reports a trailing line that had no newline.
func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.onLine != nil && len(w.pending) > 0 {
		w.onLine(strings.TrimRight(string(w.pending), "\r"))
	}
	w.pending = nil
}

func (w *lineWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.capture.String()
}
