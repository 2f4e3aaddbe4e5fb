package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"framepipe/internal/pipeline"
	"framepipe/internal/testsupport"
)

type cliTestEnv struct {
	configPath string
	stateDir   string
	framesDir  string
}

func setupCLITestEnv(t *testing.T, frameCount int) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("FRAMEPIPE_WORKERS", "")
	t.Setenv("FRAMEPIPE_STATE_DIR", "")

	env := &cliTestEnv{
		configPath: filepath.Join(base, "framepipe.toml"),
		stateDir:   filepath.Join(base, "state"),
		framesDir:  filepath.Join(base, "frames"),
	}
	content := fmt.Sprintf(`[paths]
state_dir = %q
log_dir = %q

[execution]
workers = 2

[processors]
enabled = ["invert"]

[progress]
refresh_millis = 10
`, env.stateDir, filepath.Join(base, "logs"))
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if frameCount > 0 {
		testsupport.WriteFrames(t, env.framesDir, frameCount, 3, 3)
	}
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, 0)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestConfigShowPrintsEffectiveSettings(t *testing.T) {
	env := setupCLITestEnv(t, 0)
	out, _, err := runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[execution]")
	requireContains(t, out, "workers = 2")
	requireContains(t, out, env.stateDir)
}

func TestRunProcessesThenResumes(t *testing.T) {
	env := setupCLITestEnv(t, 6)

	out, _, err := runCLI(t, []string{"run", env.framesDir, "--no-bar"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "completed")
	requireContains(t, out, "6 total, 0 skipped, 6 processed, 0 failed")
	requireContains(t, out, "parallel (2 workers)")

	out, _, err = runCLI(t, []string{"run", env.framesDir, "--no-bar"}, env.configPath)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	requireContains(t, out, "6 total, 6 skipped, 0 processed, 0 failed")

	out, _, err = runCLI(t, []string{"run", env.framesDir, "--no-bar", "--fresh", "--workers", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("fresh run: %v", err)
	}
	requireContains(t, out, "6 total, 0 skipped, 6 processed, 0 failed")
	requireContains(t, out, "bounded (1 workers)")
}

func TestRunStrictFailsWhenFramesFail(t *testing.T) {
	env := setupCLITestEnv(t, 3)
	testsupport.WriteCorrupt(t, filepath.Join(env.framesDir, "0002.png"))

	out, _, err := runCLI(t, []string{"run", env.framesDir, "--no-bar"}, env.configPath)
	if err != nil {
		t.Fatalf("run without --strict should succeed: %v", err)
	}
	requireContains(t, out, "completed with failures")

	_, _, err = runCLI(t, []string{"run", env.framesDir, "--no-bar", "--strict"}, env.configPath)
	if !errors.Is(err, errFramesFailed) {
		t.Fatalf("expected errFramesFailed, got %v", err)
	}
}

func TestRunRejectsZeroWorkers(t *testing.T) {
	env := setupCLITestEnv(t, 2)
	_, _, err := runCLI(t, []string{"run", env.framesDir, "--workers", "0"}, env.configPath)
	if !errors.Is(err, pipeline.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	requireContains(t, err.Error(), "execution.workers must be at least 1")
}

func TestRunImageMode(t *testing.T) {
	env := setupCLITestEnv(t, 1)
	src := filepath.Join(env.framesDir, "0001.png")
	dst := filepath.Join(t.TempDir(), "out.png")

	out, _, err := runCLI(t, []string{"run", src, "--image", "--output", dst, "--processors", "grayscale,invert"}, env.configPath)
	if err != nil {
		t.Fatalf("run --image: %v", err)
	}
	requireContains(t, out, "Wrote "+dst)
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("expected output at %s: %v", dst, err)
	}
}

func TestJobsListAndReset(t *testing.T) {
	env := setupCLITestEnv(t, 3)

	out, _, err := runCLI(t, []string{"jobs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "No tracked jobs")

	if _, _, err := runCLI(t, []string{"run", env.framesDir, "--no-bar"}, env.configPath); err != nil {
		t.Fatalf("run: %v", err)
	}

	out, _, err = runCLI(t, []string{"jobs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "REMAINING")
	requireContains(t, out, "RUN FRAMES")
	requireContains(t, out, env.framesDir)

	out, _, err = runCLI(t, []string{"jobs", "reset", env.framesDir}, env.configPath)
	if err != nil {
		t.Fatalf("jobs reset: %v", err)
	}
	requireContains(t, out, "Cleared 3 processed frames")

	out, _, err = runCLI(t, []string{"jobs", "reset", env.framesDir}, env.configPath)
	if err != nil {
		t.Fatalf("second jobs reset: %v", err)
	}
	requireContains(t, out, "No stored progress")
}

func TestProcessorsListsRegistry(t *testing.T) {
	env := setupCLITestEnv(t, 0)
	out, _, err := runCLI(t, []string{"processors"}, env.configPath)
	if err != nil {
		t.Fatalf("processors: %v", err)
	}
	for _, name := range []string{"invert", "grayscale", "watermark", "resize"} {
		requireContains(t, out, name)
	}
}

func TestStatusShowsPreflightAndJobs(t *testing.T) {
	env := setupCLITestEnv(t, 0)
	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Preflight ==")
	requireContains(t, out, "Processor chain:")
	requireContains(t, out, "[OK] invert")
	requireContains(t, out, "Tracked:")
}

func TestStatusChecksFramesDirectory(t *testing.T) {
	env := setupCLITestEnv(t, 3)
	out, _, err := runCLI(t, []string{"status", env.framesDir}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Frames:")
	requireContains(t, out, "(3 frames)")

	empty := filepath.Join(t.TempDir(), "empty")
	if err := os.Mkdir(empty, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	out, _, err = runCLI(t, []string{"status", empty}, env.configPath)
	if !errors.Is(err, errPreflightFailed) {
		t.Fatalf("expected errPreflightFailed, got %v", err)
	}
	requireContains(t, out, "no frame images")
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"only"}}, []columnAlignment{alignLeft, alignRight})
	requireContains(t, out, "only")
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty output without headers")
	}
}
