package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uaEvent(id int64, ua string) Event {
	return Event{ID: id, UserAgent: ua}
}

func TestRareUA_SingleOccurrenceFlagged(t *testing.T) {
	engine := NewEngine(Config{}, nil)

	events := []Event{
		uaEvent(1, "Mozilla/5.0"),
		uaEvent(2, "Mozilla/5.0"),
		uaEvent(3, "sqlmap/1.7"),
	}

	findings := runPassOn(t, engine.passRareUA, events)
	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, "web.rare_ua", f.Kind)
	assert.Equal(t, "Rare user-agent observed: 'sqlmap/1.7'", f.Reason)
	assert.Equal(t, 0.62, f.Score)
	assert.Equal(t, 1, f.Meta["count"])
	assert.Equal(t, []int64{3}, f.Meta["event_ids"])
}

func TestRareUA_RepeatedAgentNotFlagged(t *testing.T) {
	engine := NewEngine(Config{}, nil)

	events := []Event{
		uaEvent(1, "curl/8.4.0"),
		uaEvent(2, "curl/8.4.0"),
	}

	findings := runPassOn(t, engine.passRareUA, events)
	assert.Len(t, findings, 0)
}

func TestRareUA_EmptyAgentIgnored(t *testing.T) {
	engine := NewEngine(Config{}, nil)

	events := []Event{
		uaEvent(1, ""),
		uaEvent(2, ""),
	}

	findings := runPassOn(t, engine.passRareUA, events)
	assert.Len(t, findings, 0)
}

func TestRareUA_DistinctRareAgentsEmitInInputOrder(t *testing.T) {
	engine := NewEngine(Config{}, nil)

	events := []Event{
		uaEvent(1, "nikto/2.5"),
		uaEvent(2, "Mozilla/5.0"),
		uaEvent(3, "masscan/1.3"),
		uaEvent(4, "Mozilla/5.0"),
	}

	findings := runPassOn(t, engine.passRareUA, events)
	require.Len(t, findings, 2)
	assert.Equal(t, "Rare user-agent observed: 'nikto/2.5'", findings[0].Reason)
	assert.Equal(t, "Rare user-agent observed: 'masscan/1.3'", findings[1].Reason)
}

func TestRareUA_EventWithoutIDStillEmits(t *testing.T) {
	engine := NewEngine(Config{}, nil)

	events := []Event{uaEvent(0, "sqlmap/1.7")}

	findings := runPassOn(t, engine.passRareUA, events)
	require.Len(t, findings, 1)
	assert.Equal(t, []int64{}, findings[0].Meta["event_ids"])
}
