package summarize

import (
	"fmt"
	"strings"

	"warptrace/core"
)

// logFallbackGroups bounds how many groups the rule-based overview walks.
const logFallbackGroups = 5

// ruleBasedLogSummary builds the upload overview without a model: a header
// with the totals, then one action line per leading group, rendered as a
// bullet list.
func ruleBasedLogSummary(counts LogCounts, groups []core.AnomalyGroup) string {
	lines := []string{fmt.Sprintf("Review %d events with %d notable findings across %d categories.",
		counts.Events, counts.Anomalies, counts.Groups)}

	if len(groups) > logFallbackGroups {
		groups = groups[:logFallbackGroups]
	}
	for _, g := range groups {
		kind := g.Kind
		if kind == "" {
			kind = "finding"
		}
		exUser := "users"
		if len(g.Users) > 0 {
			exUser = g.Users[0]
		}
		exIP := "sources"
		if len(g.SourceIPs) > 0 {
			exIP = g.SourceIPs[0]
		}

		switch {
		case strings.HasPrefix(kind, "auth.bruteforce"):
			lines = append(lines, fmt.Sprintf("Investigate repeated login failures (e.g., %s from %s); lock account, reset password, enforce MFA.", exUser, exIP))
		case kind == "auth.blocked":
			lines = append(lines, "Review Auth0 blocks and preceding failures; if legit, force password reset and re-enroll MFA.")
		case kind == "auth.high_risk", kind == "auth.tor":
			lines = append(lines, fmt.Sprintf("Verify session owners (e.g., %s); block/geo-fence suspect IPs (e.g., %s) and require step-up MFA.", exUser, exIP))
		case strings.HasPrefix(kind, "web.error_"):
			lines = append(lines, "Correlate elevated error rates with deploys/metrics; mitigate and watch for abuse patterns.")
		case kind == "web.rare_ua":
			lines = append(lines, "Validate rare clients; if unsanctioned, rate-limit or block and capture samples.")
		case kind == "auth.offhours":
			lines = append(lines, "Confirm off-hours access and enable conditional access or step-up MFA.")
		case kind == "auth.token_fail_burst":
			lines = append(lines, "Audit client credential usage/rotation and OAuth scopes for token failure spikes.")
		default:
			lines = append(lines, fmt.Sprintf("Address %s findings with targeted containment and user validation.", kind))
		}
	}

	return "• " + strings.Join(lines, "\n• ")
}

// ruleBasedFindingSummary builds a two-sentence action for one finding. The
// subject comes from the finding metadata, falling back to the first sample
// event.
func ruleBasedFindingSummary(f core.Finding, samples []*core.LogEvent) string {
	user := metaString(f.Meta, "user")
	ip := metaString(f.Meta, "src_ip")
	if user == "" && len(samples) > 0 {
		user = samples[0].User
	}
	if ip == "" && len(samples) > 0 {
		ip = samples[0].SourceIP
	}

	switch {
	case strings.HasPrefix(f.Kind, "auth.bruteforce"):
		return fmt.Sprintf("Investigate rapid failed logins for %s from %s. Lock the account, reset the password, and review recent IP activity.",
			orDefault(user, "this account"), orDefault(ip, "one source"))
	case f.Kind == "auth.blocked":
		return fmt.Sprintf("Review the blocked login and preceding failures for %s. If legitimate, force a password reset and re-enroll MFA.",
			orDefault(user, "the account"))
	case f.Kind == "auth.high_risk", f.Kind == "auth.tor":
		return fmt.Sprintf("Verify the session owner for %s out-of-band. Geo-fence or block %s and require step-up MFA.",
			orDefault(user, "the account"), orDefault(ip, "this IP"))
	case strings.HasPrefix(f.Kind, "web.error_"):
		return "Correlate the elevated error rate with deploys and service metrics. Roll back or mitigate and watch for abuse patterns."
	case f.Kind == "web.rare_ua":
		return "Confirm whether the rare client is sanctioned. If not, rate-limit or block and capture request samples."
	case f.Kind == "auth.offhours":
		return "Confirm off-hours access with the user and enable step-up MFA or conditional access for unusual times."
	case f.Kind == "auth.token_fail_burst":
		return "Audit client credentials usage and rotation. Check for expired or leaked secrets and misconfigured OAuth scopes."
	default:
		return orDefault(f.Reason, "Review this anomaly.") + " Take immediate, minimal steps to validate and contain."
	}
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
