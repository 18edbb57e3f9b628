package summarize

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"warptrace/core"
	"warptrace/metrics"
)

const (
	// DefaultBaseURL is the OpenRouter-compatible endpoint used when the
	// configuration names none.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultModel is the stable auto-routing model alias.
	DefaultModel = "openrouter/auto"

	// DefaultAppName is sent in the X-Title attribution header.
	DefaultAppName = "WarpTrace"

	requestTimeout = 30 * time.Second

	logMaxTokens     = 220
	findingMaxTokens = 120

	logGroupLimit     = 8
	logTimelinePoints = 60
	findingSampleCap  = 5
)

// BaselineSummary is returned verbatim for uploads with no findings. API
// consumers match on this text, so it never changes shape.
const BaselineSummary = "No investigation necessary — events align with expected baseline. " +
	"No anomalous authentication or traffic patterns detected."

const logSystemPrompt = "You are a senior SOC analyst. Produce a concise incident overview of this log upload. " +
	"4–7 bullet points, imperative voice; do not include probabilities. " +
	"Call out top finding types, affected users/IPs, and next steps (MFA, resets, blocks, geo-fence, correlate with deploys)."

const findingSystemPrompt = "You are a senior SOC analyst. Write a concise, actionable summary of the anomaly. " +
	"Rules: 1–2 short sentences, imperative voice. No metrics or probabilities. " +
	"Focus on next steps: validate user, reset creds, enforce MFA, block/geo-fence IP, correlate with deploys."

// Config selects the completion endpoint and the attribution identity.
// Narratives stay rule-based unless Enabled is set and an API key is present.
type Config struct {
	Enabled bool
	APIKey  string
	BaseURL string
	Model   string
	Site    string // HTTP-Referer attribution, omitted when empty
	AppName string // X-Title attribution
}

// LogCounts carries the totals shown in upload-level summaries.
type LogCounts struct {
	Events    int `json:"events"`
	Anomalies int `json:"anomalies"`
	Groups    int `json:"groups"`
}

// LogContext describes the upload a summary is generated for.
type LogContext struct {
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
	Counts    LogCounts `json:"counts"`
}

// Summarizer generates upload-level and per-finding narratives.
type Summarizer struct {
	cfg    Config
	client *http.Client
	logger *zap.SugaredLogger
}

// New builds a Summarizer. Empty endpoint fields fall back to the OpenRouter
// defaults so a bare "enabled + key" configuration works.
func New(cfg Config, logger *zap.SugaredLogger) *Summarizer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.AppName == "" {
		cfg.AppName = DefaultAppName
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	return &Summarizer{
		cfg: cfg,
		client: &http.Client{
			Timeout:   requestTimeout,
			Transport: transport,
		},
		logger: logger,
	}
}

// Enabled reports whether model calls are attempted. Both the flag and the
// key are required; either one missing routes everything to the rule-based
// fallbacks.
func (s *Summarizer) Enabled() bool {
	return s.cfg.Enabled && s.cfg.APIKey != ""
}

// Model returns the configured model name, recorded next to cached summaries.
func (s *Summarizer) Model() string {
	return s.cfg.Model
}

// logGroup is the trimmed group shape sent to the model. Event samples are
// dropped to keep the prompt small.
type logGroup struct {
	Kind      string   `json:"kind"`
	Count     int      `json:"count"`
	Reasons   []string `json:"reasons"`
	Users     []string `json:"users"`
	SourceIPs []string `json:"src_ips"`
}

// SummarizeLog produces the one-per-upload incident overview. Uploads with
// no findings short-circuit to BaselineSummary before any model call. Model
// failures of any sort degrade to the rule-based summary, never to an error.
func (s *Summarizer) SummarizeLog(ctx context.Context, logCtx LogContext, groups []core.AnomalyGroup, timeline []core.TimelinePoint) string {
	s.logger.Debugw("Starting log summary",
		"filename", logCtx.Filename,
		"llm", s.Enabled(),
		"model", s.cfg.Model,
		"groups", len(groups))

	if len(groups) == 0 || logCtx.Counts.Anomalies == 0 {
		metrics.SummaryRequests.WithLabelValues("baseline").Inc()
		return BaselineSummary
	}

	if s.Enabled() {
		text, err := s.chat(ctx, logSystemPrompt, "Analysis input (JSON):\n"+s.logPayload(logCtx, groups, timeline), logMaxTokens)
		if err == nil {
			text = truncateSummary(text)
			s.logger.Debugw("Log summary generated", "chars", len(text), "model", s.cfg.Model)
			metrics.SummaryRequests.WithLabelValues("llm").Inc()
			return text
		}
		s.logger.Warnw("Log summary model call failed, using rule-based fallback", "error", err)
	}

	text := ruleBasedLogSummary(logCtx.Counts, groups)
	s.logger.Debugw("Log summary generated from rules", "chars", len(text))
	metrics.SummaryRequests.WithLabelValues("fallback").Inc()
	return text
}

func (s *Summarizer) logPayload(logCtx LogContext, groups []core.AnomalyGroup, timeline []core.TimelinePoint) string {
	if len(groups) > logGroupLimit {
		groups = groups[:logGroupLimit]
	}
	trimmed := make([]logGroup, 0, len(groups))
	for _, g := range groups {
		trimmed = append(trimmed, logGroup{
			Kind:      g.Kind,
			Count:     g.Count,
			Reasons:   g.Reasons,
			Users:     g.Users,
			SourceIPs: g.SourceIPs,
		})
	}
	if len(timeline) > logTimelinePoints {
		timeline = timeline[len(timeline)-logTimelinePoints:]
	}

	payload := struct {
		Context  LogContext           `json:"context"`
		Groups   []logGroup           `json:"groups"`
		Timeline []core.TimelinePoint `json:"timeline"`
	}{
		Context:  logCtx,
		Groups:   trimmed,
		Timeline: timeline,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warnw("Failed to encode log summary payload", "error", err)
		return "{}"
	}
	return string(raw)
}

// findingSample is the compact event shape attached to finding prompts.
type findingSample struct {
	Timestamp *time.Time `json:"ts"`
	User      string     `json:"user"`
	IP        string     `json:"ip"`
	Status    *int       `json:"status"`
	URL       string     `json:"url"`
	UserAgent string     `json:"ua"`
}

// SummarizeFinding produces a short narrative for one finding, given sample
// events that contributed to it. Failures degrade to the rule-based text.
func (s *Summarizer) SummarizeFinding(ctx context.Context, f core.Finding, samples []*core.LogEvent) string {
	s.logger.Debugw("Starting finding summary",
		"kind", f.Kind,
		"llm", s.Enabled(),
		"model", s.cfg.Model,
		"samples", len(samples))

	if s.Enabled() {
		text, err := s.chat(ctx, findingSystemPrompt, "Anomaly context (JSON):\n"+s.findingPayload(f, samples), findingMaxTokens)
		if err == nil {
			s.logger.Debugw("Finding summary generated", "chars", len(text), "model", s.cfg.Model)
			metrics.SummaryRequests.WithLabelValues("llm").Inc()
			return text
		}
		s.logger.Warnw("Finding summary model call failed, using rule-based fallback", "kind", f.Kind, "error", err)
	}

	text := ruleBasedFindingSummary(f, samples)
	s.logger.Debugw("Finding summary generated from rules", "chars", len(text))
	metrics.SummaryRequests.WithLabelValues("fallback").Inc()
	return text
}

func (s *Summarizer) findingPayload(f core.Finding, samples []*core.LogEvent) string {
	if len(samples) > findingSampleCap {
		samples = samples[:findingSampleCap]
	}
	trimmed := make([]findingSample, 0, len(samples))
	for _, e := range samples {
		trimmed = append(trimmed, findingSample{
			Timestamp: e.Timestamp,
			User:      e.User,
			IP:        e.SourceIP,
			Status:    e.Status,
			URL:       clip(e.URL, 120),
			UserAgent: clip(e.UserAgent, 80),
		})
	}

	payload := struct {
		Reason   string          `json:"reason"`
		Kind     string          `json:"kind"`
		User     any             `json:"user"`
		SourceIP any             `json:"src_ip"`
		Samples  []findingSample `json:"samples"`
	}{
		Reason:   f.Reason,
		Kind:     f.Kind,
		User:     f.Meta["user"],
		SourceIP: f.Meta["src_ip"],
		Samples:  trimmed,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warnw("Failed to encode finding summary payload", "error", err)
		return "{}"
	}
	return string(raw)
}
