package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

const (
	placeholderAudio = "{audio}"
	placeholderModel = "{model}"
)

// Exec runs an external recognizer once per utterance.
type Exec struct {
	args      []string
	modelPath string
}

type execOutput struct {
	Text string `json:"text"`
}

func NewExec(cfg Config) (*Exec, error) {
	args, err := shellwords.NewParser().Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse model command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("model command is empty")
	}
	return &Exec{args: args, modelPath: cfg.ModelPath}, nil
}

func (e *Exec) Name() string { return BackendExec }

// argv substitutes placeholders. Without an {audio} placeholder the path
// is appended as the last argument.
func (e *Exec) argv(wavPath string) []string {
	out := make([]string, 0, len(e.args)+1)
	sawAudio := false
	for _, a := range e.args {
		if strings.Contains(a, placeholderAudio) {
			sawAudio = true
			a = strings.ReplaceAll(a, placeholderAudio, wavPath)
		}
		a = strings.ReplaceAll(a, placeholderModel, e.modelPath)
		out = append(out, a)
	}
	if !sawAudio {
		out = append(out, wavPath)
	}
	return out
}

func (e *Exec) Transcribe(ctx context.Context, wavPath string) (string, error) {
	argv := e.argv(wavPath)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", fmt.Errorf("model command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseExecOutput(stdout.Bytes())
}

// parseExecOutput accepts {"text": ...} JSON or plain text.
func parseExecOutput(out []byte) (string, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var resp execOutput
		if err := json.Unmarshal(trimmed, &resp); err != nil {
			return "", fmt.Errorf("decode model output: %w", err)
		}
		return normalize(resp.Text)
	}
	return normalize(string(trimmed))
}

func (e *Exec) Close() error { return nil }
