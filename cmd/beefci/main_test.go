package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func runCLIForTest(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return captureOutputWithExitCode(t, func() int {
		return runCLI(args)
	})
}

const cliConfig = `version: 2.1
workflows:
  version: 2
  build_and_deploy:
    jobs:
      - build
      - deploy:
          requires: [build]
          filters:
            branches:
              only: /^main$/
  release:
    jobs:
      - publish:
          filters:
            branches:
              ignore: /.*/
            tags:
              only: /^v.*/
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRunCLIEvaluateMainBranch(t *testing.T) {
	path := writeConfig(t, cliConfig)

	code, stdout, stderr := runCLIForTest(t, path, "main")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	want := "Workflow: build_and_deploy\n - build\n - deploy\nWorkflow: release\n"
	if stdout != want {
		t.Fatalf("stdout = %q, want %q", stdout, want)
	}
}

func TestRunCLIEvaluateTag(t *testing.T) {
	path := writeConfig(t, cliConfig)

	code, stdout, stderr := runCLIForTest(t, path, "", "v1.0.0")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	want := "Workflow: build_and_deploy\n - build\nWorkflow: release\n - publish\n"
	if stdout != want {
		t.Fatalf("stdout = %q, want %q", stdout, want)
	}
}

func TestRunCLIEvaluateJSON(t *testing.T) {
	path := writeConfig(t, cliConfig)

	code, stdout, stderr := runCLIForTest(t, "--json", "--dedupe", path, "dev")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}

	var out struct {
		Input struct {
			Branch string `json:"branch"`
		} `json:"input"`
		Deduped     bool   `json:"deduped"`
		Fingerprint string `json:"fingerprint"`
		Workflows   []struct {
			Name string   `json:"name"`
			Jobs []string `json:"jobs"`
		} `json:"workflows"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("decode JSON: %v\n%s", err, stdout)
	}
	if out.Input.Branch != "dev" || !out.Deduped {
		t.Fatalf("unexpected header: %+v", out)
	}
	if !strings.HasPrefix(out.Fingerprint, "blake3:") {
		t.Fatalf("fingerprint = %q", out.Fingerprint)
	}
	if len(out.Workflows) != 2 || len(out.Workflows[0].Jobs) != 1 || out.Workflows[0].Jobs[0] != "build" {
		t.Fatalf("unexpected workflows: %+v", out.Workflows)
	}
}

func TestRunCLIEvaluateMissingFileFails(t *testing.T) {
	code, stdout, stderr := runCLIForTest(t, filepath.Join(t.TempDir(), "missing.yml"))
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if stdout != "" {
		t.Fatalf("expected no report on failure, got %q", stdout)
	}
	if !strings.Contains(stderr, "read pipeline file") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestRunCLIEvaluateMalformedWorkflowWritesNothing(t *testing.T) {
	path := writeConfig(t, `workflows:
  good:
    jobs: [a]
  bad:
    steps: []
`)
	code, stdout, stderr := runCLIForTest(t, path)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if stdout != "" {
		t.Fatalf("expected all-or-nothing output, got %q", stdout)
	}
	if !strings.Contains(stderr, `workflow "bad"`) {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestRunCLIEvaluateTooManyArgs(t *testing.T) {
	code, _, stderr := runCLIForTest(t, "a.yml", "main", "v1", "extra")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Usage: beefci") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestRunCLIEvaluateRejectsFlagAfterFile(t *testing.T) {
	path := writeConfig(t, cliConfig)

	code, stdout, stderr := runCLIForTest(t, path, "main", "--json")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if stdout != "" {
		t.Fatalf("stdout = %q, want empty", stdout)
	}
	if !strings.Contains(stderr, "flags must come before <file>") {
		t.Fatalf("stderr = %q", stderr)
	}

	code, stdout, _ = runCLIForTest(t, "--json", path, "main")
	if code != 0 {
		t.Fatalf("flags first: exit code = %d, want 0", code)
	}
	if !strings.Contains(stdout, `"branch": "main"`) {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestRunCLIRecordAndHistory(t *testing.T) {
	path := writeConfig(t, cliConfig)
	dbPath := filepath.Join(t.TempDir(), "history.db")

	code, _, stderr := runCLIForTest(t, "--record", dbPath, path, "main")
	if code != 0 {
		t.Fatalf("record exit code = %d, stderr = %s", code, stderr)
	}

	code, stdout, stderr := runCLIForTest(t, "history", "--db", dbPath)
	if code != 0 {
		t.Fatalf("history exit code = %d, stderr = %s", code, stderr)
	}
	line := regexp.MustCompile(`^([0-9a-f-]{36})  \S+  branch="main" tag="" jobs=2  `)
	m := line.FindStringSubmatch(stdout)
	if m == nil {
		t.Fatalf("unexpected history output: %q", stdout)
	}

	code, stdout, stderr = runCLIForTest(t, "history", "--db", dbPath, "--id", m[1])
	if code != 0 {
		t.Fatalf("history --id exit code = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stdout, "Workflow: build_and_deploy\n - build\n - deploy\n") {
		t.Fatalf("history --id output = %q", stdout)
	}

	code, _, _ = runCLIForTest(t, "history", "--db", dbPath, "--id", "missing")
	if code != 1 {
		t.Fatalf("history unknown id exit code = %d, want 1", code)
	}
}

func TestRunCLIHistoryMissingDatabase(t *testing.T) {
	code, _, stderr := runCLIForTest(t, "history", "--db", filepath.Join(t.TempDir(), "none.db"))
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "not available") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestRunCLICheck(t *testing.T) {
	clean := writeConfig(t, cliConfig)
	code, stdout, _ := runCLIForTest(t, "check", clean)
	if code != 0 {
		t.Fatalf("check exit code = %d, stdout = %s", code, stdout)
	}
	if !strings.HasPrefix(stdout, "Definition valid") {
		t.Fatalf("stdout = %q", stdout)
	}

	broken := writeConfig(t, "jobs: {}\n")
	code, stdout, _ = runCLIForTest(t, "check", "--json", broken)
	if code != 1 {
		t.Fatalf("check broken exit code = %d, want 1", code)
	}
	if !strings.Contains(stdout, `"category": "load"`) {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestRunCLIVersionJSON(t *testing.T) {
	origVersion, origCommit, origBuild := version, gitCommit, buildDate
	version, gitCommit, buildDate = "1.2.3", "0123456789abcdef", "2026-01-02T03:04:05Z"
	t.Cleanup(func() { version, gitCommit, buildDate = origVersion, origCommit, origBuild })

	code, stdout, stderr := runCLIForTest(t, "version", "--json")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	var info versionInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if info.Version != "1.2.3" || info.Commit != "0123456789ab" || info.BuildTime != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected version info: %+v", info)
	}
}

func TestRunCLINoArgs(t *testing.T) {
	code, _, stderr := runCLIForTest(t)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Usage:") {
		t.Fatalf("stderr = %q", stderr)
	}
}
