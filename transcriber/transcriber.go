package transcriber

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnintelligible means the model produced no usable text for the audio.
	ErrUnintelligible = errors.New("could not understand audio")
	// ErrUnavailable means the recognition backend could not be reached or started.
	ErrUnavailable = errors.New("recognition backend unavailable")
)

// Model turns one WAV file into text. Implementations are safe for
// sequential use from different goroutines; Transcribe is never called
// concurrently by the worker.
type Model interface {
	Name() string
	Transcribe(ctx context.Context, wavPath string) (string, error)
	Close() error
}

const (
	BackendWhisper = "whisper"
	BackendExec    = "exec"
	BackendServer  = "server"
	BackendFake    = "fake"
)

type Config struct {
	Backend   string
	ModelPath string
	Language  string
	Threads   int
	Command   string
	ServerURL string
	Timeout   time.Duration
}

// New builds the backend named by cfg.Backend. The returned model is meant
// to live for the whole process.
func New(cfg Config) (Model, error) {
	switch cfg.Backend {
	case BackendWhisper, "":
		return asModel(NewWhisper(cfg))
	case BackendExec:
		return asModel(NewExec(cfg))
	case BackendServer:
		return asModel(NewServer(cfg))
	case BackendFake:
		return NewFake("hello world"), nil
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.Backend)
	}
}

// asModel keeps a typed nil pointer from becoming a non-nil Model.
func asModel[M Model](m M, err error) (Model, error) {
	if err != nil {
		return nil, err
	}
	return m, nil
}

// normalize trims surrounding whitespace and maps blank output to
// ErrUnintelligible. Inner spacing is the model's and is kept.
func normalize(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrUnintelligible
	}
	return text, nil
}
