// Command loggen generates Auth0-style JSONL access logs, optionally with an
// embedded anomaly scenario, and either writes them to a file or uploads them
// straight to a running WarpTrace instance.
//
// Usage:
//
//	go run ./tools/loggen -count 500 -scenario bruteforce -out burst.jsonl
//	go run ./tools/loggen -scenario mixed -upload http://localhost:8000 -analyze
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Out      string
	Count    int
	Step     time.Duration
	Scenario string
	User     string
	IP       string
	Seed     int64
	Start    string
	Upload   string
	Username string
	Password string
	Analyze  bool
}

func main() {
	cfg := parseFlags()

	start, err := resolveStart(cfg.Start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid -start: %v\n", err)
		os.Exit(1)
	}

	gen := NewLogGenerator(cfg.Seed)
	records := gen.Baseline(start, cfg.Count, cfg.Step)

	scenarioStart := start.Add(time.Duration(cfg.Count)*cfg.Step + time.Minute)
	scenario, err := appendScenario(gen, records, cfg, scenarioStart)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	records = scenario

	if err := writeRecords(records, cfg.Out); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}
	if cfg.Out != "-" {
		fmt.Printf("Wrote %d records to %s\n", len(records), cfg.Out)
	}

	if cfg.Upload != "" {
		if err := uploadRecords(records, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
			os.Exit(1)
		}
	}
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Out, "out", "events.jsonl", "Output file, or - for stdout")
	flag.IntVar(&cfg.Count, "count", 200, "Baseline events to generate")
	flag.DurationVar(&cfg.Step, "step", 2*time.Second, "Spacing between baseline events")
	flag.StringVar(&cfg.Scenario, "scenario", "none", "Scenario: none, bruteforce, tokenburst, offhours, tor, errorrate, mixed")
	flag.StringVar(&cfg.User, "user", "alice", "Scenario target user")
	flag.StringVar(&cfg.IP, "ip", "203.0.113.66", "Scenario source address")
	flag.Int64Var(&cfg.Seed, "seed", 0, "Random seed, 0 derives one from the clock")
	flag.StringVar(&cfg.Start, "start", "", "Baseline start time (RFC 3339), empty means now")
	flag.StringVar(&cfg.Upload, "upload", "", "Base URL of a running instance to upload to")
	flag.StringVar(&cfg.Username, "username", "admin", "Login username for -upload")
	flag.StringVar(&cfg.Password, "password", "changeme", "Login password for -upload")
	flag.BoolVar(&cfg.Analyze, "analyze", false, "Trigger analysis after uploading")

	flag.Parse()
	return cfg
}

func resolveStart(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC().Truncate(time.Minute), nil
	}
	return time.Parse(time.RFC3339, s)
}

func appendScenario(gen *LogGenerator, records []Record, cfg *Config, at time.Time) ([]Record, error) {
	switch cfg.Scenario {
	case "none", "":
		return records, nil
	case "bruteforce":
		return append(records, gen.BruteForceScenario(at, cfg.User, cfg.IP, 12)...), nil
	case "tokenburst":
		return append(records, gen.TokenBurstScenario(at, cfg.User, 18)...), nil
	case "offhours":
		return append(records, gen.OffHoursScenario(at.AddDate(0, 0, 1), cfg.User, cfg.IP, 6)...), nil
	case "tor":
		return append(records, gen.TorScenario(at, cfg.User, cfg.IP)...), nil
	case "errorrate":
		return append(records, gen.ErrorRateScenario(at, cfg.User, 25)...), nil
	case "mixed":
		records = append(records, gen.BruteForceScenario(at, cfg.User, cfg.IP, 12)...)
		records = append(records, gen.TokenBurstScenario(at.Add(5*time.Minute), cfg.User, 18)...)
		records = append(records, gen.TorScenario(at.Add(12*time.Minute), cfg.User, cfg.IP)...)
		return records, nil
	default:
		return nil, fmt.Errorf("unknown scenario %q (available: bruteforce, tokenburst, offhours, tor, errorrate, mixed)", cfg.Scenario)
	}
}

func writeRecords(records []Record, out string) error {
	var w io.Writer = os.Stdout
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// uploadRecords logs in, posts the records as a multipart upload, and
// optionally starts the analysis.
func uploadRecords(records []Record, cfg *Config) error {
	client := &http.Client{Timeout: 30 * time.Second}

	token, err := login(client, cfg)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	uploadID, err := postUpload(client, cfg, token, records)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	fmt.Printf("Uploaded as %s\n", uploadID)

	if !cfg.Analyze {
		return nil
	}

	req, err := http.NewRequest(http.MethodPost, cfg.Upload+"/api/analyze/"+uploadID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("analyze: status %d: %s", resp.StatusCode, string(body))
	}
	fmt.Printf("Analysis started for %s\n", uploadID)
	return nil
}

func login(client *http.Client, cfg *Config) (string, error) {
	creds, err := json.Marshal(map[string]string{
		"username": cfg.Username,
		"password": cfg.Password,
	})
	if err != nil {
		return "", err
	}

	resp, err := client.Post(cfg.Upload+"/api/login", "application/json", bytes.NewReader(creds))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var doc struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", err
	}
	return doc.Token, nil
}

func postUpload(client *http.Client, cfg *Config, token string, records []Record) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	name := filepath.Base(cfg.Out)
	if cfg.Out == "-" {
		name = "loggen.jsonl"
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	enc := json.NewEncoder(part)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, cfg.Upload+"/api/upload", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var doc struct {
		UploadID string `json:"upload_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", err
	}
	return doc.UploadID, nil
}
