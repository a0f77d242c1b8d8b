package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/oceanlab/flowmow/pkg/config"
	"github.com/oceanlab/flowmow/pkg/instrument"
	"github.com/oceanlab/flowmow/pkg/output"
)

func sbe3Line(sec, c0 int) string {
	return fmt.Sprintf("SBE3 2019/07/01 12:00:%02d.000000 T0 %06d T1 600000 OK 123", sec, c0)
}

func writeFile(t *testing.T, path string, lines ...string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// execute runs cmd with args and returns what it wrote to stdout and stderr.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	ExitCode = 0
	t.Cleanup(func() { ExitCode = 0 })

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestNewRunCommand(t *testing.T) {
	cmd := NewRunCommand()

	if cmd.Use != "run <config-file>" {
		t.Errorf("Unexpected Use: %s", cmd.Use)
	}

	// Check flags exist
	flags := []string{"output", "dive", "metrics-file", "verbose", "quiet", "webhook-url", "webhook-token", "webhook-trigger"}
	for _, flag := range flags {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("Missing flag: %s", flag)
		}
	}
}

func TestNewParseCommand(t *testing.T) {
	cmd := NewParseCommand()

	flags := []string{"instrument", "dive", "output", "where", "calibration", "out-dir", "quiet"}
	for _, flag := range flags {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("Missing flag: %s", flag)
		}
	}
}

func TestNewValidateCommand(t *testing.T) {
	cmd := NewValidateCommand()

	if cmd.Use != "validate <config-file>" {
		t.Errorf("Unexpected Use: %s", cmd.Use)
	}

	if !strings.Contains(cmd.Long, "Validate") {
		t.Error("Missing description in Long")
	}
}

func TestNewVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, NewVersionCommand())
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if stdout != "flowmow dev\n" {
		t.Errorf("version output = %q", stdout)
	}
}

// runFixture lays out a dive with one good sbe3 log and one paros log
// holding no complete line, and returns the config path.
func runFixture(t *testing.T, extra string) (configPath, outDir string) {
	t.Helper()
	tmpDir := t.TempDir()
	outDir = filepath.Join(tmpDir, "out")

	sbe3 := writeFile(t, filepath.Join(tmpDir, "logs", "sbe3.dat"),
		sbe3Line(0, 600000), sbe3Line(1, 400000), sbe3Line(2, 700000))
	paros := writeFile(t, filepath.Join(tmpDir, "logs", "paros.dat"), "RAW short")

	config := fmt.Sprintf(`dives:
  - number: 3
    sources:
      - instrument: sbe3
        files: [%q]
      - instrument: paros
        files: [%q]
calibration:
  sbe3:
    channel_0: {g: 4.39e-03, h: 6.44e-04, i: 2.22e-05, j: 2.15e-06, f0: 1000}
    channel_1: {g: 4.39e-03, h: 6.44e-04, i: 2.22e-05, j: 2.15e-06, f0: 1000}
retrieval:
  backend: local
output:
  format: csv
  dir: %q
logging:
  level: error
%s`, sbe3, paros, outDir, extra)

	configPath = writeFile(t, filepath.Join(tmpDir, "flowmow.yaml"), config)
	return configPath, outDir
}

func TestRunRun_WritesTablesAndReport(t *testing.T) {
	configPath, outDir := runFixture(t, "")
	metricsPath := filepath.Join(t.TempDir(), "flowmow.prom")

	stdout, stderr, err := execute(t, NewRunCommand(), "--metrics-file", metricsPath, "-v", configPath)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	for _, want := range []string{"=== flowmow Run Report ===", "[DIVE 3] SBE3", "Records: 2 (2 after filter)", "[DIVE 3] PAROS", "No records recognized"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("report missing %q:\n%s", want, stdout)
		}
	}

	if ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1 for the empty paros source", ExitCode)
	}
	if !strings.Contains(stderr, "dive 3 paros produced no records") {
		t.Errorf("stderr = %q", stderr)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "dive3_sbe3.csv"))
	if err != nil {
		t.Fatalf("sbe3 table not written: %v", err)
	}
	header := strings.SplitN(string(data), "\n", 2)[0]
	if header != "timestamp,epoch,dive_number,counts_0,counts_1,temperature_0,temperature_1" {
		t.Errorf("header = %q", header)
	}

	if _, err := os.Stat(filepath.Join(outDir, "dive3_paros.csv")); err != nil {
		t.Errorf("empty paros table not written: %v", err)
	}

	prom, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(prom), `flowmow_records_parsed_total{instrument="sbe3"} 2`) {
		t.Errorf("metrics file missing sbe3 records:\n%s", prom)
	}
}

func TestRunRun_JSONReport(t *testing.T) {
	configPath, _ := runFixture(t, "")

	stdout, _, err := execute(t, NewRunCommand(), "-o", "json", "--dive", "3", configPath)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var report output.Report
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("report is not JSON: %v\n%s", err, stdout)
	}
	if report.Summary.Records != 2 || report.Summary.Sources != 2 {
		t.Errorf("summary = %+v", report.Summary)
	}
	if report.Sources[0].Instrument != instrument.SBE3 {
		t.Errorf("first source = %s, want sbe3", report.Sources[0].Instrument)
	}
}

func TestRunRun_Errors(t *testing.T) {
	configPath, _ := runFixture(t, "")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing config", []string{"/nonexistent/flowmow.yaml"}, "loading config"},
		{"unknown dive", []string{"--dive", "9", configPath}, "dive 9 is not in the configuration"},
		{"bad report format", []string{"-o", "xml", configPath}, `unknown format "xml"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, NewRunCommand(), tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestRunRun_FilterRemovesRows(t *testing.T) {
	configPath, outDir := runFixture(t, "")
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	filtered := strings.Replace(string(data), "  format: csv\n", "  format: csv\n  where: \"counts_0 > 650000\"\n", 1)
	if err := os.WriteFile(configPath, []byte(filtered), 0644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := execute(t, NewRunCommand(), configPath)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(stdout, "Records: 2 (1 after filter)") {
		t.Errorf("report = %s", stdout)
	}

	table, err := os.ReadFile(filepath.Join(outDir, "dive3_sbe3.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(strings.TrimSpace(string(table)), "\n"); n != 1 {
		t.Errorf("table has %d data rows, want 1", n)
	}
}

func TestRunRun_Webhook(t *testing.T) {
	var received []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	configPath, _ := runFixture(t, "")

	_, stderr, err := execute(t, NewRunCommand(), "-q", "--webhook-url", server.URL, configPath)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(stderr, "Webhook cli: sent (200") {
		t.Errorf("stderr = %q", stderr)
	}

	var payload struct {
		Attention    bool     `json:"attention"`
		Unproductive []string `json:"unproductive"`
	}
	if err := json.Unmarshal(received, &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if !payload.Attention || len(payload.Unproductive) != 1 || payload.Unproductive[0] != "dive3/paros" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestRunRun_SamplingIssues(t *testing.T) {
	configPath, _ := runFixture(t, "")
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	// sbe3 records sit at 0s and 2s; the implausible line at 1s is dropped
	checked := strings.Replace(string(data), "      - instrument: sbe3\n", "      - instrument: sbe3\n        max_gap: 1500ms\n", 1)
	if err := os.WriteFile(configPath, []byte(checked), 0644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := execute(t, NewRunCommand(), configPath)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(stdout, "Issue: No records for 2s") || !strings.Contains(stdout, "Issues: 1") {
		t.Errorf("report = %s", stdout)
	}
	if ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", ExitCode)
	}
}

func TestCollectWebhooks(t *testing.T) {
	cfg := &config.Config{Webhooks: []config.WebhookConfig{{Name: "ops", URL: "https://ops.example.org/hook"}}}

	hooks, err := collectWebhooks(cfg, &RunOptions{})
	if err != nil || len(hooks) != 1 {
		t.Fatalf("collectWebhooks() = %v, %v", hooks, err)
	}

	hooks, err = collectWebhooks(cfg, &RunOptions{WebhookURL: "http://localhost/hook", WebhookTrigger: "always"})
	if err != nil {
		t.Fatalf("collectWebhooks() error = %v", err)
	}
	if len(hooks) != 2 || hooks[1].Name != "cli" || hooks[1].Trigger != config.WebhookTriggerAlways {
		t.Errorf("hooks = %+v", hooks)
	}
	if len(cfg.Webhooks) != 1 {
		t.Error("collectWebhooks() modified the configuration")
	}

	if _, err := collectWebhooks(cfg, &RunOptions{WebhookURL: "http://localhost/hook", WebhookTrigger: "sometimes"}); err == nil {
		t.Error("Expected error for unknown trigger")
	}
}

func TestRunParse_Stdout(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "sbe3.dat"), sbe3Line(0, 600000), sbe3Line(1, 610000))

	stdout, stderr, err := execute(t, NewParseCommand(), "-d", "4", path)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows:\n%s", len(lines), stdout)
	}
	if lines[0] != "timestamp,epoch,dive_number,counts_0,counts_1" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "2019-07-01 12:00:00.000000,1561982400,4,600000,600000") {
		t.Errorf("row = %q", lines[1])
	}
	if !strings.Contains(stderr, "sbe3: 2 records from 2 lines") {
		t.Errorf("stderr = %q", stderr)
	}
	if ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", ExitCode)
	}
}

func TestRunParse_CalibrationJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, filepath.Join(dir, "sbe3.dat"), sbe3Line(0, 600000))
	coef := writeFile(t, filepath.Join(dir, "coefficients.yaml"),
		"sbe3:",
		"  channel_0: {g: 4.39e-03, h: 6.44e-04, i: 2.22e-05, j: 2.15e-06, f0: 1000}",
		"  channel_1: {g: 4.39e-03, h: 6.44e-04, i: 2.22e-05, j: 2.15e-06, f0: 1000}",
	)

	stdout, _, err := execute(t, NewParseCommand(), "-i", "sbe3", "-o", "json", "-q", "--calibration", coef, path)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	var rows []map[string]any
	if err := json.Unmarshal([]byte(stdout), &rows); err != nil {
		t.Fatalf("output is not a JSON array: %v\n%s", err, stdout)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	temp, ok := rows[0]["temperature_0"].(float64)
	if !ok || temp < 12.07 || temp > 12.09 {
		t.Errorf("temperature_0 = %v", rows[0]["temperature_0"])
	}
}

func TestRunParse_OutDir(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, filepath.Join(dir, "sbe3.dat"), sbe3Line(0, 600000))
	outDir := filepath.Join(dir, "out")

	stdout, stderr, err := execute(t, NewParseCommand(), "-i", "sbe3", "-d", "8", "-o", "text", "--out-dir", outDir, path)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want nothing", stdout)
	}
	want := filepath.Join(outDir, "dive8_sbe3.txt")
	if !strings.Contains(stderr, "Wrote: "+want) {
		t.Errorf("stderr = %q", stderr)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("table not written: %v", err)
	}
}

func TestRunParse_NoRecords(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "sbe3.dat"), sbe3Line(0, 400000))

	_, _, err := execute(t, NewParseCommand(), "-i", "sbe3", "-q", path)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", ExitCode)
	}
}

func TestRunParse_Errors(t *testing.T) {
	dir := t.TempDir()
	noise := writeFile(t, filepath.Join(dir, "noise.txt"), "nothing to see")
	good := writeFile(t, filepath.Join(dir, "sbe3.dat"), sbe3Line(0, 600000))

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown instrument", []string{"-i", "ctd", good}, "unknown instrument"},
		{"undetectable", []string{noise}, "no instrument recognized"},
		{"bad format", []string{"-i", "sbe3", "-o", "xml", good}, `unknown format "xml"`},
		{"bad filter", []string{"-i", "sbe3", "--where", "tau > 1", good}, "compiling filter"},
		{"missing calibration", []string{"-i", "sbe3", "--calibration", filepath.Join(dir, "none.yaml"), good}, "reading calibration file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, NewParseCommand(), tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestRunValidate_Success(t *testing.T) {
	configPath, _ := runFixture(t, "kafka:\n  enabled: true\n  brokers: [\"localhost:9092\"]\n")

	stdout, _, err := execute(t, NewValidateCommand(), configPath)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	for _, want := range []string{"Configuration valid!", "Dives:       1", "Kafka:       flowmow.records", "1. [sbe3]", "2. [paros]"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
	if strings.Contains(stdout, "Warning") {
		t.Errorf("unexpected warning:\n%s", stdout)
	}
}

func TestRunValidate_MissingSourceWarns(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeFile(t, filepath.Join(tmpDir, "flowmow.yaml"),
		"dives:",
		"  - number: 1",
		"    sources:",
		"      - instrument: nortek",
		"        files: [\""+filepath.Join(tmpDir, "absent.dat")+"\"]",
	)

	stdout, _, err := execute(t, NewValidateCommand(), configPath)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !strings.Contains(stdout, "Warning: dive 1 nortek: no file matches") {
		t.Errorf("output missing warning:\n%s", stdout)
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	configPath := writeFile(t, filepath.Join(t.TempDir(), "invalid.yaml"), "invalid: yaml: content")

	_, _, err := execute(t, NewValidateCommand(), configPath)
	if err == nil {
		t.Error("Expected error for invalid config")
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, _, err := execute(t, NewValidateCommand(), "/nonexistent/config.yaml")
	if err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestWatchDescriptors(t *testing.T) {
	descs, err := watchDescriptors([]string{"paros", "SBE3"})
	if err != nil {
		t.Fatalf("watchDescriptors failed: %v", err)
	}
	if len(descs) != 2 || descs[1].Kind != instrument.SBE3 {
		t.Errorf("descs = %v", descs)
	}

	if descs, err := watchDescriptors(nil); err != nil || descs != nil {
		t.Errorf("watchDescriptors(nil) = %v, %v", descs, err)
	}

	if _, err := watchDescriptors([]string{"navigation"}); err == nil {
		t.Error("Expected navigation to be rejected")
	}
}

func TestPrintRecord(t *testing.T) {
	d, _ := instrument.Lookup(instrument.SBE3)
	rec, outcome, err := d.Recognize(sbe3Line(0, 600000), 2)
	if err != nil || outcome != instrument.Accepted {
		t.Fatalf("Recognize = %v, %v", outcome, err)
	}

	var text bytes.Buffer
	if err := printRecordText(&text, rec); err != nil {
		t.Fatal(err)
	}
	if got := text.String(); got != "[SBE3] 2019-07-01 12:00:00.000000 1561982400 2 600000 600000\n" {
		t.Errorf("text = %q", got)
	}

	var js bytes.Buffer
	if err := printRecordJSON(&js, rec); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(js.String(), `{"timestamp":"2019-07-01T12:00:00Z","epoch":1561982400,"dive_number":2,"counts_0":600000`) {
		t.Errorf("json = %q", js.String())
	}
}

func TestRunWatch_Cancelled(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "sbe3.dat"), sbe3Line(0, 600000))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := NewWatchCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--poll", path})
	if err := cmd.ExecuteContext(ctx); err != nil {
		t.Errorf("watch returned %v after cancel", err)
	}
}

func TestRunWatch_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{filepath.Join(t.TempDir(), "absent.dat")}},
		{"bad instrument", []string{"-i", "ctd", "x.dat"}},
		{"bad format", []string{"-o", "csv", "x.dat"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, NewWatchCommand(), tt.args...)
			if err == nil {
				t.Error("Expected error")
			}
		})
	}
}
