package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultAuthDomain fills in absolute URLs for Auth0-style rows that only
// carry an event type code.
const DefaultAuthDomain = "auth.warptrace.corp"

// ParseAuth0JSONL parses Auth0-style JSON lines into rows. Every non-empty
// line must be a JSON object; one malformed line fails the whole parse so
// the sniffer can fall through to the next format.
//
// Event type codes map onto a synthetic url/action/status triple: s|f hit
// /authorize, seacft|feacft hit /oauth/token, w|limit|blocked are provider
// blocks (403), anything else is a plain allowed request. Risk hints under
// details.risk are appended to raw where the detection engine can read them.
func ParseAuth0JSONL(text, authDomain string) ([]Row, error) {
	rows := make([]Row, 0, 64)
	for i, line := range splitLines(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		rows = append(rows, auth0Row(obj, authDomain))
	}
	return rows, nil
}

func auth0Row(obj map[string]any, authDomain string) Row {
	etype := strings.ToLower(stringValue(obj["type"]))

	var url string
	switch etype {
	case "s", "f":
		url = "https://" + authDomain + "/authorize"
	case "seacft", "feacft":
		url = "https://" + authDomain + "/oauth/token"
	default:
		url = "/"
	}

	action, status := "allow", 200
	switch etype {
	case "s", "seacft":
	case "f", "feacft":
		status = 401
	case "w", "limit", "blocked":
		action, status = "block", 403
	}

	details, _ := obj["details"].(map[string]any)
	ua := stringValue(details["device"])
	if ua == "" {
		ua = stringValue(details["user_agent"])
	}
	if ua == "" {
		ua = "Auth0"
	}

	raw := stringValue(obj["description"])
	if raw == "" {
		raw = stringValue(obj["log_id"])
	}
	if risk, ok := details["risk"].(map[string]any); ok {
		if score, present := risk["score"]; present {
			raw += " risk=" + scalarString(score) + " reason=" + stringValue(risk["reason"])
		}
	}

	user := stringValue(obj["user_name"])
	if user == "" {
		user = stringValue(obj["user_id"])
	}

	return Row{
		"time":       strings.TrimSpace(stringValue(obj["date"])),
		"src_ip":     stringValue(obj["ip"]),
		"user":       user,
		"url":        url,
		"action":     action,
		"status":     status,
		"bytes":      0,
		"user_agent": ua,
		"raw":        raw,
	}
}
