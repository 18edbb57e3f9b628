package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func riskEvent(id int64, raw string) Event {
	return Event{
		ID:       id,
		User:     "alice",
		SourceIP: "203.0.113.9",
		Raw:      raw,
	}
}

func TestHighRisk_ScoreScalesWithHint(t *testing.T) {
	engine := NewEngine(Config{}, nil)

	events := []Event{riskEvent(1, "login ok risk=0.5 reason=ip_velocity")}

	findings := runPassOn(t, engine.passHighRisk, events)
	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, "auth.high_risk", f.Kind)
	assert.Equal(t, "High-risk login source (user=alice ip=203.0.113.9)", f.Reason)
	assert.InDelta(t, 0.925, f.Score, 1e-9)
	assert.Equal(t, 0.5, f.Meta["risk"])
	assert.Equal(t, []int64{1}, f.Meta["event_ids"])
}

func TestHighRisk_MalformedHintUsesDefault(t *testing.T) {
	engine := NewEngine(Config{}, nil)

	for _, raw := range []string{
		"login risk=elevated from new asn",
		"login risk=",
	} {
		findings := runPassOn(t, engine.passHighRisk, []Event{riskEvent(1, raw)})
		require.Len(t, findings, 1, "raw: %s", raw)
		assert.Equal(t, 0.9, findings[0].Meta["risk"], "raw: %s", raw)
		assert.InDelta(t, 0.985, findings[0].Score, 1e-9, "raw: %s", raw)
	}
}

func TestHighRisk_PunctuationStripped(t *testing.T) {
	engine := NewEngine(Config{}, nil)

	events := []Event{riskEvent(1, "blocked signup risk=0.72; asn=64496")}

	findings := runPassOn(t, engine.passHighRisk, events)
	require.Len(t, findings, 1)
	assert.Equal(t, 0.72, findings[0].Meta["risk"])
}

func TestHighRisk_ScoreClampedAtOne(t *testing.T) {
	engine := NewEngine(Config{}, nil)

	events := []Event{riskEvent(1, "login risk=2.5 from scripted client")}

	findings := runPassOn(t, engine.passHighRisk, events)
	require.Len(t, findings, 1)
	assert.Equal(t, 1.0, findings[0].Score)
	assert.Equal(t, 2.5, findings[0].Meta["risk"])
}

func TestHighRisk_NonFiniteHintUsesDefault(t *testing.T) {
	engine := NewEngine(Config{}, nil)

	for _, raw := range []string{"login risk=nan", "login risk=+inf"} {
		findings := runPassOn(t, engine.passHighRisk, []Event{riskEvent(1, raw)})
		require.Len(t, findings, 1, "raw: %s", raw)
		assert.Equal(t, 0.9, findings[0].Meta["risk"], "raw: %s", raw)
	}
}

func TestHighRisk_TorVocabulary(t *testing.T) {
	engine := NewEngine(Config{}, nil)

	events := []Event{riskEvent(1, "login from tor_exit node 185.220.101.4")}

	findings := runPassOn(t, engine.passHighRisk, events)
	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, "auth.tor", f.Kind)
	assert.Equal(t, "Login from TOR-like source (user=alice ip=203.0.113.9)", f.Reason)
	assert.Equal(t, 0.88, f.Score)
	assert.Equal(t, []int64{1}, f.Meta["event_ids"])
}

func TestHighRisk_RiskHintWinsOverTor(t *testing.T) {
	engine := NewEngine(Config{}, nil)

	events := []Event{riskEvent(1, "tor exit login risk=0.3")}

	findings := runPassOn(t, engine.passHighRisk, events)
	require.Len(t, findings, 1)
	assert.Equal(t, "auth.high_risk", findings[0].Kind)
}

func TestHighRisk_PlainTrafficIgnored(t *testing.T) {
	engine := NewEngine(Config{}, nil)

	events := []Event{riskEvent(1, "successful login from corporate network")}

	findings := runPassOn(t, engine.passHighRisk, events)
	assert.Len(t, findings, 0)
}
