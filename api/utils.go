package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"warptrace/util"
)

// writeError writes a JSON error response to the client and logs it. Every
// error body has the shape {"error": "<message>"}. The underlying error is
// sanitized before logging; parse and auth errors can embed attacker text.
func writeError(w http.ResponseWriter, statusCode int, message string, err error, logger *zap.SugaredLogger) {
	if err != nil && logger != nil {
		logger.Errorw(message,
			"error", util.SanitizeError(err),
			"status_code", statusCode,
		)
	} else if logger != nil {
		logger.Errorw(message,
			"status_code", statusCode,
		)
	}

	respondJSON(w, map[string]string{"error": message}, statusCode, logger)
}

// respondJSON encodes data as the response body with the given status.
// Encoding failures are logged; the status line is already on the wire by
// then, so there is nothing else to send the client.
func respondJSON(w http.ResponseWriter, data interface{}, statusCode int, logger *zap.SugaredLogger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil && logger != nil {
		logger.Errorw("Failed to encode JSON response", "error", err)
	}
}

// decodeJSONBodyWithLimit decodes a JSON request body into dst, rejecting
// bodies over maxBytes and bodies with fields dst does not declare. It
// writes the error response itself; callers just return on error.
func (a *API) decodeJSONBodyWithLimit(w http.ResponseWriter, r *http.Request, dst interface{}, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", err, a.logger)
		} else {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err), err, a.logger)
		}
		return err
	}
	return nil
}

// maxTrackedKeys bounds the limiter map. Past this size, stale windows
// are swept on the next Allow call.
const maxTrackedKeys = 4096

// FixedWindowLimiter counts requests per key inside fixed windows. It
// backs login throttling, where a hard per-window cutoff is wanted rather
// than the burst smoothing of a token bucket.
type FixedWindowLimiter struct {
	mu     sync.Mutex
	counts map[string]*requestWindow
	window time.Duration
	limit  int
}

type requestWindow struct {
	n     int
	start time.Time
}

// NewFixedWindowLimiter returns a limiter allowing limit requests per key
// in each window.
func NewFixedWindowLimiter(window time.Duration, limit int) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		counts: make(map[string]*requestWindow),
		window: window,
		limit:  limit,
	}
}

// Allow records an attempt for key and reports whether it fits in the
// key's current window.
func (f *FixedWindowLimiter) Allow(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()

	if len(f.counts) > maxTrackedKeys {
		for k, rw := range f.counts {
			if now.Sub(rw.start) > f.window {
				delete(f.counts, k)
			}
		}
	}

	rw, ok := f.counts[key]
	if !ok || now.Sub(rw.start) > f.window {
		f.counts[key] = &requestWindow{n: 1, start: now}
		return true
	}

	if rw.n >= f.limit {
		return false
	}
	rw.n++
	return true
}
