package engine

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"warptrace/metrics"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"
)

// DefaultPatternTimeout bounds backtracking for user-supplied recognizer
// patterns. Built-in recognizers use the standard library engine and need no
// timeout.
const DefaultPatternTimeout = 500 * time.Millisecond

// ErrPatternTimeout is returned when a custom pattern exceeds its match
// timeout, which usually indicates a ReDoS-prone expression.
var ErrPatternTimeout = fmt.Errorf("pattern evaluation timeout")

var (
	patternCache = make(map[string]*regexp2.Regexp)
	patternMutex sync.RWMutex
)

// compilePattern returns a cached case-insensitive regexp2 pattern with the
// given match timeout. Distinct timeouts get distinct cache entries.
func compilePattern(pattern string, timeout time.Duration) (*regexp2.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("pattern cannot be empty")
	}

	cacheKey := fmt.Sprintf("%s:%d", pattern, timeout.Milliseconds())

	patternMutex.RLock()
	re, exists := patternCache[cacheKey]
	patternMutex.RUnlock()
	if exists {
		return re, nil
	}

	patternMutex.Lock()
	defer patternMutex.Unlock()
	// Another goroutine may have compiled it while we waited for the lock
	if re, exists = patternCache[cacheKey]; exists {
		return re, nil
	}

	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase)
	if err != nil {
		return nil, fmt.Errorf("failed to compile pattern: %w", err)
	}
	re.MatchTimeout = timeout
	patternCache[cacheKey] = re
	return re, nil
}

// matchPattern evaluates a custom pattern against input under its timeout.
func matchPattern(name, pattern, input string, timeout time.Duration, logger *zap.SugaredLogger) (bool, error) {
	re, err := compilePattern(pattern, timeout)
	if err != nil {
		return false, err
	}

	start := time.Now() // clockcheck:exempt match timing metric only
	match, err := re.MatchString(input)
	elapsed := time.Since(start)
	metrics.RecognizerMatchDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "timeout") {
			metrics.RecognizerTimeouts.WithLabelValues(name).Inc()
			if logger != nil {
				logger.Warnf("Recognizer %s timed out: pattern may be vulnerable to ReDoS (timeout: %v, input length: %d)",
					name, timeout, len(input))
			}
			return false, ErrPatternTimeout
		}
		return false, fmt.Errorf("pattern matching error: %w", err)
	}
	return match, nil
}

// ClearPatternCache clears the compiled pattern cache (useful for testing).
func ClearPatternCache() {
	patternMutex.Lock()
	defer patternMutex.Unlock()
	patternCache = make(map[string]*regexp2.Regexp)
}
