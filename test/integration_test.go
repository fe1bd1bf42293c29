//go:build integration

package test_test

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"scribe/audio"
)

var (
	testBinary string
	speechWAV  string
	silentWAV  string
)

func TestMain(m *testing.M) {
	testBinary = os.Getenv("SCRIBE_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "SCRIBE_TEST_BIN not set; build with: go build -tags nogui -o /tmp/scribe . && SCRIBE_TEST_BIN=/tmp/scribe go test -tags integration ./test/")
		os.Exit(1)
	}

	dir, err := os.MkdirTemp("", "scribe-integration-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "temp dir: %v\n", err)
		os.Exit(1)
	}
	speechWAV = filepath.Join(dir, "speech.wav")
	silentWAV = filepath.Join(dir, "silence.wav")
	pcm := append(audio.Silence(500*time.Millisecond), audio.Tone(time.Second, 440, 8000)...)
	if err := audio.WriteWAV(speechWAV, &audio.Utterance{PCM: pcm, SampleRate: audio.SampleRate}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate speech.wav: %v\n", err)
		os.Exit(1)
	}
	if err := audio.WriteWAV(silentWAV, &audio.Utterance{PCM: audio.Silence(time.Second), SampleRate: audio.SampleRate}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate silence.wav: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

type result struct {
	out    string
	code   int
	logDir string
}

func runScribe(t *testing.T, env []string, args ...string) result {
	t.Helper()
	logDir := t.TempDir()
	cmdArgs := append([]string{"-logpath", logDir}, args...)

	cmd := exec.Command(testBinary, cmdArgs...)
	cmd.Env = append(os.Environ(), "SCRIBE_CONFIG="+filepath.Join(t.TempDir(), "absent.yaml"))
	cmd.Env = append(cmd.Env, env...)

	out, err := cmd.CombinedOutput()
	code := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	} else if err != nil {
		t.Fatalf("scribe failed to run: %v", err)
	}
	return result{out: string(out), code: code, logDir: logDir}
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

// noConfig points SCRIBE_CONFIG at an empty file so only env overrides apply.
func noConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	return "SCRIBE_CONFIG=" + path
}

func TestVersion(t *testing.T) {
	r := runScribe(t, nil, "-version")
	if r.code != 0 || !strings.HasPrefix(r.out, "scribe ") {
		t.Fatalf("exit %d, output %q", r.code, r.out)
	}
}

func TestMissingConfigFileFails(t *testing.T) {
	r := runScribe(t, nil, "-doctor", speechWAV)
	if r.code != 1 || !strings.Contains(r.out, "config file not found") {
		t.Fatalf("exit %d, output %q", r.code, r.out)
	}
}

func TestInvalidBackendFails(t *testing.T) {
	r := runScribe(t, []string{noConfig(t), "SCRIBE_MODEL_BACKEND=bogus"}, "-doctor", speechWAV)
	if r.code != 1 || !strings.Contains(r.out, "model.backend") {
		t.Fatalf("exit %d, output %q", r.code, r.out)
	}
}

func TestDoctorFakeBackend(t *testing.T) {
	r := runScribe(t, []string{noConfig(t), "SCRIBE_MODEL_BACKEND=fake"}, "-doctor", speechWAV)
	if r.code != 0 {
		t.Fatalf("exit %d, output:\n%s", r.code, r.out)
	}
	for _, want := range []string{"fake backend ready", `"hello world"`, "All checks passed!"} {
		if !strings.Contains(r.out, want) {
			t.Errorf("output missing %q:\n%s", want, r.out)
		}
	}
	if diag := readLog(t, r.logDir, "diagnostics_log.txt"); !strings.Contains(diag, "starting") {
		t.Errorf("diagnostics log missing startup line:\n%s", diag)
	}
}

func TestDoctorExecBackend(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
	env := []string{
		noConfig(t),
		"SCRIBE_MODEL_BACKEND=exec",
		`SCRIBE_MODEL_COMMAND=sh -c 'echo "{\"text\": \"from exec\"}"' {audio}`,
	}
	r := runScribe(t, env, "-doctor", speechWAV)
	if r.code != 0 || !strings.Contains(r.out, `"from exec"`) {
		t.Fatalf("exit %d, output:\n%s", r.code, r.out)
	}
}

func TestDoctorExecEmptyOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
	env := []string{noConfig(t), "SCRIBE_MODEL_BACKEND=exec", "SCRIBE_MODEL_COMMAND=sh -c 'true' {audio}"}
	r := runScribe(t, env, "-doctor", silentWAV)
	if r.code != 1 || !strings.Contains(r.out, "model returned no text") {
		t.Fatalf("exit %d, output:\n%s", r.code, r.out)
	}
}

func TestDoctorServerUnavailable(t *testing.T) {
	env := []string{noConfig(t), "SCRIBE_MODEL_BACKEND=server", "SCRIBE_MODEL_SERVER_URL=http://127.0.0.1:1/inference"}
	r := runScribe(t, env, "-doctor", speechWAV)
	if r.code != 1 || !strings.Contains(r.out, "backend unavailable") {
		t.Fatalf("exit %d, output:\n%s", r.code, r.out)
	}
}
