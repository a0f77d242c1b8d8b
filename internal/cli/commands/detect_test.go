package commands

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/oceanlab/flowmow/pkg/config"
	"github.com/oceanlab/flowmow/pkg/detector"
	"github.com/oceanlab/flowmow/pkg/instrument"
)

const malformedParosLine = "RAW 2019/07/01 12:00:00.123456 P2=short"

func TestGenerateStarterConfig(t *testing.T) {
	match := &detector.InstrumentMatch{
		Kind:       instrument.SBE3,
		Confidence: 0.95,
		Records:    95,
	}

	cfg := generateStarterConfig("/var/log/vehicle/sbe3.dat", match, 12)

	// Verify config contains expected elements
	checks := []string{
		"dives:",
		"number: 12",
		"instrument: sbe3",
		"/var/log/vehicle/sbe3.dat",
		"calibration:",
		"channel_0:",
		"retrieval:",
		"95%",
	}

	for _, check := range checks {
		if !strings.Contains(cfg, check) {
			t.Errorf("Config missing expected content: %q", check)
		}
	}
}

func TestGenerateStarterConfig_Loads(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := writeFile(t, filepath.Join(tmpDir, "paros.dat"), "x")
	configPath := filepath.Join(tmpDir, "flowmow.yaml")

	match := &detector.InstrumentMatch{Kind: instrument.Paros, Confidence: 1, Records: 10}
	if err := os.WriteFile(configPath, []byte(generateStarterConfig(logFile, match, 4)), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(context.Background(), configPath)
	if err != nil {
		t.Fatalf("Generated config does not load: %v", err)
	}
	if len(cfg.Dives) != 1 || cfg.Dives[0].Number != 4 {
		t.Fatalf("dives = %+v", cfg.Dives)
	}
	src := cfg.Dives[0].Sources[0]
	if src.Kind() != instrument.Paros || src.Files[0] != logFile {
		t.Errorf("source = %+v", src)
	}
}

func TestWriteStarterConfig_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "flowmow.yaml")

	result := detector.New().DetectFromLines([]string{sbe3Line(0, 600000)})

	var out strings.Builder
	if err := writeStarterConfig(&out, result, "sbe3.dat", configPath, 1); err != nil {
		t.Fatalf("writeStarterConfig failed: %v", err)
	}

	if !strings.Contains(out.String(), "Wrote starter config to: "+configPath) {
		t.Errorf("Unexpected output: %q", out.String())
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Config file not written: %v", err)
	}
	if !strings.Contains(string(data), "instrument: sbe3") {
		t.Error("Config file missing instrument")
	}
}

func TestWriteStarterConfig_NoOverwrite(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeFile(t, filepath.Join(tmpDir, "existing.yaml"), "existing: true")

	result := detector.New().DetectFromLines([]string{sbe3Line(0, 600000)})

	var out strings.Builder
	err := writeStarterConfig(&out, result, "sbe3.dat", configPath, 1)
	if err == nil {
		t.Fatal("Expected error when config file exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}

	// Verify original content preserved
	data, _ := os.ReadFile(configPath)
	if string(data) != "existing: true\n" {
		t.Error("Original config was modified")
	}
}

func TestWriteStarterConfig_NoMatch(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "flowmow.yaml")

	result := detector.New().DetectFromLines([]string{malformedParosLine})

	var out strings.Builder
	err := writeStarterConfig(&out, result, "paros.dat", configPath, 1)
	if err == nil {
		t.Fatal("Expected error when no instrument produced records")
	}
	if _, statErr := os.Stat(configPath); !os.IsNotExist(statErr) {
		t.Error("Config file should not be written")
	}
}

func TestRunDetect_Text(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "unknown.dat"),
		sbe3Line(0, 600000), sbe3Line(1, 400000), sbe3Line(2, 610000), malformedParosLine)

	stdout, _, err := execute(t, NewDetectCommand(), "--all", path)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}

	checks := []string{
		"=== Instrument Detection ===",
		"Lines sampled: 4",
		"Detected Instrument: sbe3",
		"Confidence: 50.0% (2/4 lines became records)",
		"First timestamp: 2019-07-01T12:00:00Z",
		"Rejected: 1 (0 malformed, 1 out of range, 0 unconvertible)",
		"2. paros (0.0% confidence, 1 signed lines)",
		"Note: 1 lines carry the paros signature",
	}
	for _, check := range checks {
		if !strings.Contains(stdout, check) {
			t.Errorf("Output missing %q:\n%s", check, stdout)
		}
	}
}

func TestRunDetect_JSON(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "unknown.dat"),
		sbe3Line(0, 600000), malformedParosLine)

	for _, tc := range []struct {
		args        []string
		wantMatches int
	}{
		{[]string{"-o", "json"}, 1},
		{[]string{"-o", "json", "--all"}, 2},
	} {
		stdout, _, err := execute(t, NewDetectCommand(), append(tc.args, path)...)
		if err != nil {
			t.Fatalf("detect %v failed: %v", tc.args, err)
		}

		var got JSONOutput
		if err := json.Unmarshal([]byte(stdout), &got); err != nil {
			t.Fatalf("Output is not JSON: %v\n%s", err, stdout)
		}
		if len(got.Matches) != tc.wantMatches {
			t.Fatalf("%v: got %d matches, want %d", tc.args, len(got.Matches), tc.wantMatches)
		}

		best := got.Matches[0]
		if best.Instrument != "sbe3" || best.Records != 1 || best.Confidence != 0.5 {
			t.Errorf("best match = %+v", best)
		}
		if !best.FirstTime.Equal(time.Date(2019, 7, 1, 12, 0, 0, 0, time.UTC)) {
			t.Errorf("first time = %v", best.FirstTime)
		}
		if got.SampledLines != 2 || len(got.Notes) != 1 {
			t.Errorf("sampled = %d, notes = %v", got.SampledLines, got.Notes)
		}
	}
}

func TestRunDetect_NoMatch(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "noise.txt"), "hello", "world")

	stdout, _, err := execute(t, NewDetectCommand(), path)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if !strings.Contains(stdout, "No instrument detected.") {
		t.Errorf("Unexpected output:\n%s", stdout)
	}
}

func TestRunDetect_WriteConfig(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeFile(t, filepath.Join(tmpDir, "sbe3.dat"), sbe3Line(0, 600000))
	configPath := filepath.Join(tmpDir, "flowmow.yaml")

	stdout, _, err := execute(t, NewDetectCommand(), "-w", configPath, "--dive", "7", path)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if !strings.HasPrefix(stdout, "Wrote starter config to: "+configPath) {
		t.Errorf("Unexpected output:\n%s", stdout)
	}

	cfg, err := config.Load(context.Background(), configPath)
	if err != nil {
		t.Fatalf("Written config does not load: %v", err)
	}
	if cfg.Dives[0].Number != 7 {
		t.Errorf("dive = %d, want 7", cfg.Dives[0].Number)
	}
}

func TestRunDetect_Errors(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "sbe3.dat"), sbe3Line(0, 600000))

	if _, _, err := execute(t, NewDetectCommand(), "/nonexistent/file.dat"); err == nil {
		t.Error("Expected error for missing file")
	}
	if _, _, err := execute(t, NewDetectCommand(), "-o", "xml", path); err == nil {
		t.Error("Expected error for unknown output format")
	}
}

func TestDetectOptions_Defaults(t *testing.T) {
	cmd := NewDetectCommand()

	// Check default values
	output, _ := cmd.Flags().GetString("output")
	if output != "text" {
		t.Errorf("Expected default output 'text', got %q", output)
	}

	sample, _ := cmd.Flags().GetInt("sample")
	if sample != detector.DefaultSampleSize {
		t.Errorf("Expected default sample %d, got %d", detector.DefaultSampleSize, sample)
	}

	showAll, _ := cmd.Flags().GetBool("all")
	if showAll {
		t.Error("Expected default all to be false")
	}
}
