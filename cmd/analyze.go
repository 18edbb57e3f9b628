// Package cmd provides the offline command line interface.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"warptrace/core"
	"warptrace/engine"
	"warptrace/ingest"
	"warptrace/summarize"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Flags for the analyze command
var (
	outputJSON      bool
	recognizersFile string
	parallelPasses  bool
	noColor         bool
	quiet           bool
)

// maxAnalyzeFileSize matches the API's default upload cap.
const maxAnalyzeFileSize = 100 * 1024 * 1024

// analysisReport is the document emitted by --json. The field names line up
// with the server's analysis endpoint so scripts can share parsing.
type analysisReport struct {
	File     string               `json:"file"`
	Format   string               `json:"format"`
	Events   int                  `json:"events"`
	Findings int                  `json:"findings"`
	Groups   []core.AnomalyGroup  `json:"anomaly_groups"`
	Timeline []core.TimelinePoint `json:"timeline"`
	Summary  string               `json:"summary"`
}

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze a log export without starting the server",
		Long: `Analyze a local log export and print the detected anomalies.

The file format is sniffed the same way the upload endpoint sniffs it:
Auth0-style JSONL, CSV, msgpack, or plain lines. Detection runs fully
offline and the summary comes from the deterministic rule-based narrator.`,
		Args: cobra.ExactArgs(1),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(args[0])
		},
	}

	analyzeCmd.Flags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	analyzeCmd.Flags().StringVar(&recognizersFile, "recognizers", "", "Extra activity recognizers file (YAML)")
	analyzeCmd.Flags().BoolVar(&parallelPasses, "parallel", false, "Run detection passes in parallel")
	analyzeCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	analyzeCmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")

	return analyzeCmd
}

func runAnalyze(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	if info.Size() > maxAnalyzeFileSize {
		return fmt.Errorf("%s is %d bytes, over the %d byte limit", path, info.Size(), maxAnalyzeFileSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}

	logger := zap.NewNop().Sugar()

	var extras []engine.Recognizer
	if recognizersFile != "" {
		extras, err = engine.LoadRecognizers(recognizersFile, logger)
		if err != nil {
			return fmt.Errorf("failed to load recognizers: %w", err)
		}
	}
	eng := engine.NewEngine(engine.Config{
		ExtraRecognizers: extras,
		ParallelPasses:   parallelPasses,
	}, logger)

	// Show progress while detection runs
	var s *spinner.Spinner
	if !outputJSON && !quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Analyzing " + filepath.Base(path) + "..."
		s.Start()
	}

	report := analyzeContent(eng, content, filepath.Base(path), logger)

	if s != nil {
		s.Stop()
	}

	if outputJSON {
		return outputAsJSON(report)
	}

	renderReport(path, report)
	return nil
}

// analyzeContent runs the upload pipeline shape without storage: parse,
// assign sequential row ids, detect, group, summarize.
func analyzeContent(eng *engine.Engine, content []byte, filename string, logger *zap.SugaredLogger) *analysisReport {
	rows, format := ingest.SmartParse(content, filename)

	events := make([]*core.LogEvent, 0, len(rows))
	for i, r := range rows {
		ev := r.Event()
		ev.ID = int64(i + 1)
		events = append(events, ev)
	}

	raws := make([]engine.RawEvent, len(events))
	for i, e := range events {
		raws[i] = e.RawMap()
	}
	findings := eng.Analyze(raws)

	groups := core.GroupFindings(findings, core.NewEventIndex(events))
	timeline := core.BuildTimeline(events)

	// The offline narrator stays rule-based; no network, same text every run.
	narrator := summarize.New(summarize.Config{}, logger)
	summary := narrator.SummarizeLog(context.Background(), summarize.LogContext{
		Filename:  filename,
		CreatedAt: time.Now().UTC(),
		Counts: summarize.LogCounts{
			Events:    len(events),
			Anomalies: len(findings),
			Groups:    len(groups),
		},
	}, groups, core.TailPoints(timeline, 60))

	return &analysisReport{
		File:     filename,
		Format:   format,
		Events:   len(events),
		Findings: len(findings),
		Groups:   groups,
		Timeline: timeline,
		Summary:  summary,
	}
}

// outputAsJSON outputs data as indented JSON to stdout.
func outputAsJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
