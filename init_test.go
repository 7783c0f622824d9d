package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/phobologic/treedeco/internal/config"
)

func runInit(args []string, stdout, stderr *bytes.Buffer) error {
	return run(append([]string{"init"}, args...), stdout, stderr)
}

// TestApplySectionCreate verifies that applySection on empty content yields
// just the section with a trailing newline.
func TestApplySectionCreate(t *testing.T) {
	t.Parallel()
	section := sentinelStart + "\nbody\n" + sentinelEnd
	got := applySection("", section)
	if got != section+"\n" {
		t.Errorf("applySection(\"\") = %q", got)
	}
}

// TestApplySectionAppend verifies that existing content without a sentinel block
// is preserved and the section is appended.
func TestApplySectionAppend(t *testing.T) {
	t.Parallel()
	existing := "# team overrides below\ndebounce: 200ms"
	section := sentinelStart + "\nnew content\n" + sentinelEnd
	got := applySection(existing, section)

	if !strings.HasPrefix(got, existing+"\n\n") {
		t.Errorf("existing content should be preserved at start:\n%s", got)
	}
	if !strings.HasSuffix(got, section+"\n") {
		t.Errorf("section should be appended:\n%s", got)
	}
}

// TestApplySectionUpdate verifies that an existing sentinel block is replaced
// precisely, leaving surrounding content intact.
func TestApplySectionUpdate(t *testing.T) {
	t.Parallel()
	before := "# project notes\n\n"
	after := "\n\n# trailing comment\n"
	old := before + sentinelStart + "\nold content\n" + sentinelEnd + after

	section := sentinelStart + "\nnew content\n" + sentinelEnd
	got := applySection(old, section)

	if got != before+section+after {
		t.Errorf("unexpected result:\n%s", got)
	}
}

func TestGeneratedSectionIsDefaultConfig(t *testing.T) {
	t.Parallel()

	section := generateSection()
	if !strings.HasPrefix(section, sentinelStart+"\n") || !strings.HasSuffix(section, "\n"+sentinelEnd) {
		t.Fatalf("section not wrapped in sentinels:\n%s", section)
	}

	got := config.Default()
	got.Languages = nil
	if err := yaml.Unmarshal([]byte(section), &got); err != nil {
		t.Fatalf("section is not valid YAML: %v", err)
	}
	want := config.Default()
	if got.Debounce != want.Debounce || got.UsageWindow != want.UsageWindow {
		t.Errorf("durations = %s/%s, want %s/%s", got.Debounce, got.UsageWindow, want.Debounce, want.UsageWindow)
	}
	if strings.Join(got.Languages, ",") != strings.Join(want.Languages, ",") {
		t.Errorf("languages = %v, want %v", got.Languages, want.Languages)
	}
	if !got.Observers.Await.Enabled || !got.Observers.Imports.Enabled {
		t.Error("observers should be enabled by default")
	}
}

// TestInitCreatesFile verifies that init creates the target file when it does
// not exist, and that the file loads as configuration.
func TestInitCreatesFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, config.FileName)

	var stdout, stderr bytes.Buffer
	if err := runInit([]string{path}, &stdout, &stderr); err != nil {
		t.Fatalf("init: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("file not created: %v", err)
	}
	if !strings.Contains(string(data), sentinelStart) || !strings.Contains(string(data), sentinelEnd) {
		t.Error("sentinels missing from created file")
	}
	if strings.Contains(stderr.String(), "Warning") {
		t.Errorf("unexpected warning: %s", stderr.String())
	}
	if _, err := config.LoadDir(dir); err != nil {
		t.Errorf("written config does not load: %v", err)
	}
}

// TestInitDryRun verifies that --dry-run prints the full would-be file content
// to stdout and does not create the target file.
func TestInitDryRun(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), config.FileName)

	var stdout, stderr bytes.Buffer
	if err := runInit([]string{"--dry-run", path}, &stdout, &stderr); err != nil {
		t.Fatalf("init: %v", err)
	}

	if _, err := os.Stat(path); err == nil {
		t.Error("--dry-run should not create the file")
	}
	if !strings.Contains(stdout.String(), sentinelStart) {
		t.Error("dry-run output missing sentinel start")
	}
}

// TestInitDryRunNoPath verifies that --dry-run without a path prints just the
// generated section.
func TestInitDryRunNoPath(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := runInit([]string{"--dry-run"}, &stdout, &stderr); err != nil {
		t.Fatalf("init: %v", err)
	}
	if got := stdout.String(); got != generateSection()+"\n" {
		t.Errorf("output = %q", got)
	}
}

// TestInitPreservesSurroundingContent verifies that a rerun after the user
// added comments outside the block keeps them.
func TestInitPreservesSurroundingContent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), config.FileName)

	existing := "# Shared with the frontend team.\n"
	if err := os.WriteFile(path, []byte(existing), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := runInit([]string{path}, &buf, &buf); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(first), existing) {
		t.Errorf("existing content lost:\n%s", first)
	}

	if err := runInit([]string{path}, &buf, &buf); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, _ := os.ReadFile(path)
	if string(first) != string(second) {
		t.Errorf("init is not idempotent:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestInitTooManyArgs(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := runInit([]string{"a.yaml", "b.yaml"}, &stdout, &stderr); err == nil {
		t.Error("expected error for two paths")
	}
}
