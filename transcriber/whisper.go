//go:build whisper

package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"scribe/audio"
)

const WhisperAvailable = true

// Whisper runs whisper.cpp in process. The model is loaded once; every
// utterance gets a fresh decoding context.
type Whisper struct {
	mu      sync.Mutex
	model   whisper.Model
	lang    string
	threads uint
}

func NewWhisper(cfg Config) (*Whisper, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path is empty")
	}
	model, err := whisper.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model %q: %w", cfg.ModelPath, err)
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = min(runtime.NumCPU(), 8)
	}
	return &Whisper{model: model, lang: cfg.Language, threads: uint(threads)}, nil
}

func (w *Whisper) Name() string { return BackendWhisper }

func (w *Whisper) Transcribe(ctx context.Context, wavPath string) (string, error) {
	utt, err := audio.ReadWAV(wavPath)
	if err != nil {
		return "", err
	}
	if utt.SampleRate != whisper.SampleRate {
		return "", fmt.Errorf("whisper needs %d Hz audio, got %d", whisper.SampleRate, utt.SampleRate)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create context: %w", err)
	}
	if w.lang != "" {
		if err := wctx.SetLanguage(w.lang); err != nil {
			return "", fmt.Errorf("set language %q: %w", w.lang, err)
		}
	}
	wctx.SetThreads(w.threads)

	// returning false from the encoder callback aborts decoding
	keepGoing := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(utt.Float32Samples(), keepGoing, nil, nil); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("process: %w", err)
	}

	var parts []string
	for {
		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("next segment: %w", err)
		}
		parts = append(parts, seg.Text)
	}
	// segments carry their own leading space
	return normalize(strings.Join(parts, ""))
}

func (w *Whisper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model == nil {
		return nil
	}
	err := w.model.Close()
	w.model = nil
	return err
}
