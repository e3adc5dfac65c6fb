package sandbox

import (
	"io"
	"regexp"
	"strings"
	"sync"
)

// DefaultOutputLines is the number of output lines a LineWatcher keeps by default.
const DefaultOutputLines = 50

// LineWatcher is a writer that splits process output into lines, keeps the last few
// of them and signals when a line matches the readiness pattern.
type LineWatcher struct {
	pattern *regexp.Regexp
	tee     io.Writer
	keep    int

	mu      sync.Mutex
	buf     []byte // holds current incomplete line
	lines   []string
	ready   chan struct{}
	matched bool
}

// NewLineWatcher creates a watcher for the given pattern. A nil pattern never matches.
// Complete lines are also written to tee when it is non-nil.
func NewLineWatcher(pattern *regexp.Regexp, keep int, tee io.Writer) *LineWatcher {
	if keep <= 0 {
		keep = DefaultOutputLines
	}
	return &LineWatcher{
		pattern: pattern,
		tee:     tee,
		keep:    keep,
		ready:   make(chan struct{}),
	}
}

// Ready is closed when the first matching line has been written.
func (w *LineWatcher) Ready() <-chan struct{} {
	return w.ready
}

// Lines returns a copy of the retained output lines, oldest first.
func (w *LineWatcher) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.lines...)
}

func (w *LineWatcher) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var err error
	for _, b := range p {
		if b != '\n' {
			w.buf = append(w.buf, b)
			continue
		}
		if terr := w.flushLine(); terr != nil && err == nil {
			err = terr
		}
	}
	return len(p), err
}

// Close flushes the last incomplete line.
func (w *LineWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) == 0 {
		return nil
	}
	return w.flushLine()
}

func (w *LineWatcher) flushLine() error {
	line := strings.TrimRight(string(w.buf), "\r")
	w.buf = w.buf[:0]

	w.lines = append(w.lines, line)
	if len(w.lines) > w.keep {
		w.lines = w.lines[len(w.lines)-w.keep:]
	}
	if !w.matched && w.pattern != nil && w.pattern.MatchString(line) {
		w.matched = true
		close(w.ready)
	}
	if w.tee != nil {
		_, err := io.WriteString(w.tee, line+"\n")
		return err
	}
	return nil
}

// linePrefixWriter wraps a writer, prefixing written lines with a string.
type linePrefixWriter struct {
	w      io.Writer
	prefix string
}

// PrefixWriter returns a writer that prefixes every write with prefix. It is meant to
// be used as the tee of a LineWatcher, which only writes complete lines.
func PrefixWriter(w io.Writer, prefix string) io.Writer {
	return &linePrefixWriter{w: w, prefix: prefix}
}

func (w *linePrefixWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(w.w, w.prefix); err != nil {
		return 0, err
	}
	return w.w.Write(p)
}
