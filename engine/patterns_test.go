package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCompilePattern_CachesCompiledPatterns(t *testing.T) {
	ClearPatternCache()

	first, err := compilePattern("abc+", DefaultPatternTimeout)
	require.NoError(t, err)
	second, err := compilePattern("abc+", DefaultPatternTimeout)
	require.NoError(t, err)
	assert.Same(t, first, second)

	// A different timeout is a different cache entry.
	third, err := compilePattern("abc+", time.Second)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestCompilePattern_EmptyRejected(t *testing.T) {
	_, err := compilePattern("", DefaultPatternTimeout)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestCompilePattern_InvalidRejected(t *testing.T) {
	_, err := compilePattern("(unclosed", DefaultPatternTimeout)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile")
}

func TestMatchPattern_CaseInsensitive(t *testing.T) {
	logger := zap.NewNop().Sugar()

	match, err := matchPattern("test", "password\\s+reset", "PASSWORD RESET requested", DefaultPatternTimeout, logger)
	require.NoError(t, err)
	assert.True(t, match)

	match, err = matchPattern("test", "password\\s+reset", "routine login", DefaultPatternTimeout, logger)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestMatchPattern_BacktrackingBounded(t *testing.T) {
	ClearPatternCache()
	logger := zap.NewNop().Sugar()

	// Classic catastrophic backtracking input: the timeout must cut it off
	// rather than stalling the detection run.
	input := strings.Repeat("a", 64) + "!"
	start := time.Now()
	match, err := matchPattern("redos", "(a+)+$", input, 200*time.Millisecond, logger)
	elapsed := time.Since(start)

	if err != nil {
		assert.ErrorIs(t, err, ErrPatternTimeout)
		assert.False(t, match)
		assert.Less(t, elapsed, 5*time.Second, "timeout should bound evaluation")
	} else {
		// Engine improvements may evaluate this quickly; a clean non-match
		// is also acceptable.
		assert.False(t, match)
	}
}
