// Package goroutine provides panic recovery for background goroutines.
package goroutine

import (
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"
)

// stackBufferSize caps the captured trace. Deep stacks get truncated
// rather than allocating without bound inside a panic handler.
const stackBufferSize = 4096

// Recover logs a recovered panic with its stack trace. Deferred at the top
// of long-lived goroutines so a panic takes down one worker, not the
// process. A nil logger falls back to stderr; the panic must land
// somewhere.
func Recover(name string, logger *zap.SugaredLogger) {
	r := recover()
	if r == nil {
		return
	}

	buf := make([]byte, stackBufferSize)
	n := runtime.Stack(buf, false)
	trace := string(buf[:n])

	if logger == nil {
		fmt.Fprintf(os.Stderr, "panic in goroutine %q: %v\n%s\n", name, r, trace)
		return
	}
	logger.Errorw("Recovered panicking goroutine",
		"goroutine", name,
		"panic", r,
		"stack", trace)
}
