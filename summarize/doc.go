// Package summarize turns detection results into short operator-facing
// narratives. When an OpenRouter API key is configured it asks an
// OpenAI-compatible chat-completions endpoint for the text; otherwise, or
// whenever the call fails, it falls back to deterministic rule-based
// summaries keyed off finding kinds. Uploads with no findings get a fixed
// baseline message without any model call.
package summarize
