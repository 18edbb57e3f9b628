package cmd

import (
	"fmt"
	"strings"

	"warptrace/core"
)

// renderReport displays the analysis result as colored tables.
func renderReport(path string, report *analysisReport) {
	headerColor.Printf("Analysis: %s\n", path)
	headerColor.Println(strings.Repeat("=", 72))
	printField("Format", report.Format)
	printField("Events", fmt.Sprintf("%d", report.Events))
	printField("Findings", fmt.Sprintf("%d", report.Findings))
	fmt.Println()

	renderGroupsTable(report.Groups)
	renderTimeline(report.Timeline)

	headerColor.Println("Summary")
	headerColor.Println(strings.Repeat("-", 72))
	fmt.Println(report.Summary)
}

// renderGroupsTable displays the anomaly groups in a formatted table.
func renderGroupsTable(groups []core.AnomalyGroup) {
	if len(groups) == 0 {
		successColor.Println("No anomalies detected")
		fmt.Println()
		return
	}

	errorColor.Printf("%d anomaly group(s)\n", len(groups))
	headerColor.Println(strings.Repeat("-", 72))
	fmt.Printf("%-22s %-7s %-20s %-20s\n", "Kind", "Count", "Users", "Source IPs")
	fmt.Println(strings.Repeat("-", 72))

	for _, g := range groups {
		fmt.Printf("%-22s %-7d %-20s %-20s\n",
			truncate(g.Kind, 22), g.Count, joinCapped(g.Users, 2), joinCapped(g.SourceIPs, 2))
		for _, reason := range capped(g.Reasons, 3) {
			warningColor.Printf("    %s\n", reason)
		}
	}
	fmt.Println()
}

// renderTimeline displays the last minutes of activity.
func renderTimeline(timeline []core.TimelinePoint) {
	tail := core.TailPoints(timeline, 10)
	if len(tail) == 0 {
		return
	}

	headerColor.Println("Activity (last minutes)")
	headerColor.Println(strings.Repeat("-", 72))
	for _, p := range tail {
		fmt.Printf("%-25s %d\n", p.Minute, p.Count)
	}
	fmt.Println()
}

func printField(name, value string) {
	fmt.Printf("  %-12s %s\n", name+":", value)
}

// joinCapped joins up to max values and counts the rest.
func joinCapped(values []string, max int) string {
	if len(values) == 0 {
		return "-"
	}
	if len(values) <= max {
		return strings.Join(values, ", ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(values[:max], ", "), len(values)-max)
}

func capped(values []string, max int) []string {
	if len(values) <= max {
		return values
	}
	return values[:max]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
