package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// LogGenerator generates Auth0-style access log records in the shape the
// upload sniffer recognizes. A fixed seed reproduces the same log.
type LogGenerator struct {
	rand *rand.Rand
}

// NewLogGenerator creates a generator. Seed 0 derives one from the clock.
func NewLogGenerator(seed int64) *LogGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &LogGenerator{rand: rand.New(rand.NewSource(seed))}
}

// Record is one JSONL line. Field names follow the Auth0 log export
// vocabulary: type codes s/f mark login success/failure, seacft/feacft mark
// token exchanges, w/limit/blocked mark provider blocks.
type Record struct {
	Date        string         `json:"date"`
	Type        string         `json:"type"`
	UserName    string         `json:"user_name,omitempty"`
	IP          string         `json:"ip"`
	LogID       string         `json:"log_id"`
	Description string         `json:"description,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

func (g *LogGenerator) record(at time.Time, etype, user, ip, desc string) Record {
	return Record{
		Date:        at.UTC().Format(time.RFC3339),
		Type:        etype,
		UserName:    user,
		IP:          ip,
		LogID:       uuid.New().String(),
		Description: desc,
	}
}

// Success generates a successful login.
func (g *LogGenerator) Success(at time.Time, user, ip string) Record {
	return g.record(at, "s", user, ip, "Successful login")
}

// Failure generates a failed login.
func (g *LogGenerator) Failure(at time.Time, user, ip string) Record {
	return g.record(at, "f", user, ip, "Wrong email or password.")
}

// TokenFailure generates a failed token exchange.
func (g *LogGenerator) TokenFailure(at time.Time, user, ip string) Record {
	return g.record(at, "feacft", user, ip, "Unauthorized")
}

// Blocked generates a provider-side block.
func (g *LogGenerator) Blocked(at time.Time, user, ip string) Record {
	return g.record(at, "limit", user, ip, "Blocked by brute-force protection")
}

// Helper functions for realistic values

func (g *LogGenerator) randomUser() string {
	users := []string{
		"alice", "bob", "carol", "dave", "erin", "frank",
		"grace", "heidi", "ivan", "judy", "svc_backup", "svc_report",
	}
	return users[g.rand.Intn(len(users))]
}

// randomIP returns an address from the TEST-NET ranges.
func (g *LogGenerator) randomIP() string {
	prefixes := []string{"192.0.2", "198.51.100", "203.0.113"}
	return fmt.Sprintf("%s.%d", prefixes[g.rand.Intn(len(prefixes))], g.rand.Intn(254)+1)
}

// Baseline generates calm daytime traffic: successes with the occasional
// isolated failure, never enough to trip a detection window.
func (g *LogGenerator) Baseline(start time.Time, count int, step time.Duration) []Record {
	records := make([]Record, 0, count)
	for i := 0; i < count; i++ {
		at := start.Add(time.Duration(i) * step)
		user := g.randomUser()
		ip := g.randomIP()
		if g.rand.Float32() < 0.04 {
			records = append(records, g.Failure(at, user, ip))
			continue
		}
		records = append(records, g.Success(at, user, ip))
	}
	return records
}

// Scenario generators. Each burst is shaped to cross one detection
// threshold: sizes and spacing here must stay ahead of the engine's windows.

// BruteForceScenario generates fails failed logins for one user from one
// address inside two minutes, then a final success.
func (g *LogGenerator) BruteForceScenario(start time.Time, user, ip string, fails int) []Record {
	records := make([]Record, 0, fails+1)
	for i := 0; i < fails; i++ {
		records = append(records, g.Failure(start.Add(time.Duration(i)*5*time.Second), user, ip))
	}
	records = append(records, g.Success(start.Add(time.Duration(fails)*5*time.Second), user, ip))
	return records
}

// TokenBurstScenario generates count failed token exchanges inside five
// minutes, spread over a handful of client addresses.
func (g *LogGenerator) TokenBurstScenario(start time.Time, user string, count int) []Record {
	ips := []string{g.randomIP(), g.randomIP(), g.randomIP()}
	records := make([]Record, 0, count)
	for i := 0; i < count; i++ {
		at := start.Add(time.Duration(i) * 10 * time.Second)
		records = append(records, g.TokenFailure(at, user, ips[i%len(ips)]))
	}
	return records
}

// OffHoursScenario generates count successful logins between 01:00 and 04:00.
func (g *LogGenerator) OffHoursScenario(day time.Time, user, ip string, count int) []Record {
	night := time.Date(day.Year(), day.Month(), day.Day(), 1, 0, 0, 0, time.UTC)
	records := make([]Record, 0, count)
	for i := 0; i < count; i++ {
		at := night.Add(time.Duration(g.rand.Intn(3*3600)) * time.Second)
		records = append(records, g.Success(at, user, ip))
	}
	return records
}

// TorScenario generates one successful login carrying a provider risk hint.
func (g *LogGenerator) TorScenario(at time.Time, user, ip string) []Record {
	rec := g.Success(at, user, ip)
	rec.Details = map[string]any{
		"risk": map[string]any{
			"score":  0.92,
			"reason": "tor_exit_node",
		},
	}
	return []Record{rec}
}

// ErrorRateScenario generates count requests for one user inside a single
// ten-minute bucket, four fifths of them failures.
func (g *LogGenerator) ErrorRateScenario(start time.Time, user string, count int) []Record {
	// Detection buckets are fixed ten-minute windows, so the burst must not
	// straddle a boundary.
	start = start.Truncate(10 * time.Minute)
	ip := g.randomIP()
	records := make([]Record, 0, count)
	step := 9 * time.Minute / time.Duration(max(1, count))
	for i := 0; i < count; i++ {
		at := start.Add(time.Duration(i) * step)
		if i%5 == 0 {
			records = append(records, g.Success(at, user, ip))
			continue
		}
		records = append(records, g.Failure(at, user, ip))
	}
	return records
}
