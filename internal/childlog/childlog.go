// Package childlog pipes a helper child's stderr into the bridge's own
// structured logger, one line at a time, labeled by the helper that
// produced it.
package childlog

import (
	"bufio"
	"io"
	"strings"

	"go.uber.org/zap"
)

// Pipe scans r line by line until it closes or hits an error, logging
// each non-blank line at info level under label. It is meant to run in
// its own goroutine for the lifetime of the child process.
func Pipe(label string, r io.ReadCloser, logger *zap.Logger) {
	defer r.Close()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if logger != nil {
			logger.Info("helper stderr", zap.String("helper", label), zap.String("line", line))
		}
	}
}
