package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeRecognizerFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRecognizers_YAML(t *testing.T) {
	path := writeRecognizerFile(t, "recognizers.yaml", `
recognizers:
  - name: legacy_vpn
    kind: net.legacy_vpn
    pattern: 'ikev1|aggressive[-\s]mode'
    score: 0.7
    reason: "Legacy VPN handshake observed for %s."
`)

	recognizers, err := LoadRecognizers(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.Len(t, recognizers, 1)

	r := recognizers[0]
	assert.Equal(t, "legacy_vpn", r.Name)
	assert.Equal(t, "net.legacy_vpn", r.Kind)
	assert.Equal(t, 0.7, r.Score)
	assert.Equal(t, "Legacy VPN handshake observed for %s.", r.Reason)
	assert.True(t, r.Classifier.Match("IKEv1 handshake from 10.0.0.5"))
	assert.False(t, r.Classifier.Match("tls 1.3 session established"))
}

func TestLoadRecognizers_JSON(t *testing.T) {
	path := writeRecognizerFile(t, "recognizers.json", `{
  "recognizers": [
    {"name": "s3_listing", "kind": "web.s3_listing", "pattern": "ListBucketResult", "score": 0.6}
  ]
}`)

	recognizers, err := LoadRecognizers(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.Len(t, recognizers, 1)
	assert.Equal(t, "web.s3_listing", recognizers[0].Kind)
	// Omitted reason gets a generated one with the usual placeholder.
	assert.Equal(t, "Suspicious s3_listing activity observed for %s.", recognizers[0].Reason)
	assert.True(t, recognizers[0].Classifier.Match("<listbucketresult xmlns=...>"))
}

func TestLoadRecognizers_FileMissing(t *testing.T) {
	_, err := LoadRecognizers(filepath.Join(t.TempDir(), "absent.yaml"), zap.NewNop().Sugar())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read recognizers file")
}

func TestLoadRecognizers_SchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing pattern",
			content: `
recognizers:
  - name: broken
    kind: a.b
    score: 0.5
`,
		},
		{
			name: "kind without dot",
			content: `
recognizers:
  - name: broken
    kind: nodot
    pattern: x
    score: 0.5
`,
		},
		{
			name: "score out of range",
			content: `
recognizers:
  - name: broken
    kind: a.b
    pattern: x
    score: 1.5
`,
		},
		{
			name: "uppercase name",
			content: `
recognizers:
  - name: Broken
    kind: a.b
    pattern: x
    score: 0.5
`,
		},
		{
			name: "unknown field",
			content: `
recognizers:
  - name: broken
    kind: a.b
    pattern: x
    score: 0.5
    severity: high
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeRecognizerFile(t, "recognizers.yaml", tt.content)
			_, err := LoadRecognizers(path, zap.NewNop().Sugar())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validation failed")
		})
	}
}

func TestLoadRecognizers_BadPatternRejected(t *testing.T) {
	path := writeRecognizerFile(t, "recognizers.yaml", `
recognizers:
  - name: broken
    kind: a.b
    pattern: '(unclosed'
    score: 0.5
`)

	_, err := LoadRecognizers(path, zap.NewNop().Sugar())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestLoadRecognizers_ReasonPlaceholderValidated(t *testing.T) {
	for _, reason := range []string{
		"No placeholder at all.",
		"Two for %s and %s.",
		"Wrong verb %d here.",
	} {
		path := writeRecognizerFile(t, "recognizers.yaml", `
recognizers:
  - name: broken
    kind: a.b
    pattern: x
    score: 0.5
    reason: "`+reason+`"
`)
		_, err := LoadRecognizers(path, zap.NewNop().Sugar())
		require.Error(t, err, "reason: %s", reason)
		assert.Contains(t, err.Error(), "placeholder", "reason: %s", reason)
	}
}

func TestLoadRecognizers_MalformedYAML(t *testing.T) {
	path := writeRecognizerFile(t, "recognizers.yaml", "recognizers: [:::")

	_, err := LoadRecognizers(path, zap.NewNop().Sugar())
	require.Error(t, err)
}

func TestLoadRecognizers_EndToEndDetection(t *testing.T) {
	path := writeRecognizerFile(t, "recognizers.yaml", `
recognizers:
  - name: debug_endpoint
    kind: web.debug_endpoint
    pattern: '/__debug__/'
    score: 0.8
    reason: "Debug endpoint probed by %s."
`)

	extras, err := LoadRecognizers(path, zap.NewNop().Sugar())
	require.NoError(t, err)

	engine := NewEngine(Config{ExtraRecognizers: extras}, nil)
	findings := engine.Analyze([]RawEvent{{
		"id":     1,
		"ts":     "2024-03-12T14:00:00Z",
		"user":   "alice",
		"src_ip": "10.0.0.5",
		"url":    "https://app.example.com/__debug__/vars",
	}})

	require.Len(t, findings, 1)
	assert.Equal(t, "web.debug_endpoint", findings[0].Kind)
	assert.Equal(t, "Debug endpoint probed by alice.", findings[0].Reason)
}
