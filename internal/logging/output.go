package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single probe output line
	// before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept per run.
	MaxBufferedLines = 100
)

// OutputHandler receives the output stream of one probe run. It is an
// io.Writer, so it can be handed to exec.Cmd directly; complete lines are
// classified, logged, and kept in a ring buffer for the failure log.
type OutputHandler struct {
	ctx     context.Context
	logger  *slog.Logger
	stream  string
	verbose bool

	mu      sync.Mutex
	partial []byte
	buffer  []string
	bufIdx  int
	total   int
}

// NewOutputHandler creates a handler for the named stream ("stdout" or
// "stderr"). Records are logged with ctx so per-run attributes are kept.
func NewOutputHandler(ctx context.Context, logger *slog.Logger, stream string, verbose bool) *OutputHandler {
	return &OutputHandler{
		ctx:     ctx,
		logger:  logger,
		stream:  stream,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
	}
}

// Write implements io.Writer. Incomplete trailing data is held until the
// next newline or Flush.
func (h *OutputHandler) Write(p []byte) (int, error) {
	h.mu.Lock()
	h.partial = append(h.partial, p...)
	var lines []string
	for {
		i := bytes.IndexByte(h.partial, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(h.partial[:i], "\r")))
		h.partial = h.partial[i+1:]
	}
	if len(h.partial) > MaxLineLength {
		lines = append(lines, string(h.partial))
		h.partial = h.partial[:0]
	}
	h.mu.Unlock()

	for _, line := range lines {
		h.HandleLine(line)
	}
	return len(p), nil
}

// Flush handles any buffered partial line. Call it after the process has
// been reaped.
func (h *OutputHandler) Flush() {
	h.mu.Lock()
	rest := string(h.partial)
	h.partial = nil
	h.mu.Unlock()
	if rest != "" {
		h.HandleLine(rest)
	}
}

// HandleLine stores and logs a single line of probe output.
func (h *OutputHandler) HandleLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.total++
	h.mu.Unlock()

	level := classifyLine(line)
	if !h.verbose && level == slog.LevelDebug {
		return
	}
	h.logger.Log(h.ctx, level, "probe_output",
		"stream", h.stream,
		"line", line,
	)
}

// classifyLine picks a log level from the line content.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "error"),
		strings.Contains(lower, "fatal"),
		strings.Contains(lower, "panic"),
		strings.Contains(lower, "connection refused"):
		return slog.LevelWarn
	case strings.Contains(lower, "warn"),
		strings.Contains(lower, "timeout"):
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}
	if n > h.total {
		n = h.total
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		lines = append(lines, h.buffer[idx])
	}
	return lines
}

// Lines returns the number of lines seen, including ones rotated out of the
// ring buffer.
func (h *OutputHandler) Lines() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}
