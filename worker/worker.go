// Package worker runs the capture, transcribe and report loop of one
// listening session.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"scribe/audio"
	"scribe/log"
	"scribe/transcriber"
)

const (
	MsgCalibrating    = "Adjusting for ambient noise... Please wait."
	MsgReady          = "Ready! Start speaking..."
	MsgProcessing     = "Processing speech..."
	MsgUnintelligible = "⚠️ Couldn't understand, please speak again."
	MsgUnavailable    = "❌ API unavailable or connection issue."

	wavName = "speech.wav"
)

// Listener is the part of audio.Listener the worker needs.
type Listener interface {
	Calibrate(ctx context.Context, d time.Duration) error
	Listen(ctx context.Context) (*audio.Utterance, error)
	EnergyThreshold() float64
	DeviceName() string
	// Begin marks the start of a session. The returned func releases the
	// microphone unless a newer session has begun since.
	Begin() (end func())
}

type Config struct {
	Calibration time.Duration
	TempDir     string        // "" means the OS temp dir
	ErrorPause  time.Duration // wait after a capture failure
	OnReady     func()        // called once calibration is done
}

type Worker struct {
	id       string
	listener Listener
	model    transcriber.Model
	cfg      Config
}

func New(listener Listener, model transcriber.Model, cfg Config) *Worker {
	return &Worker{
		id:       uuid.NewString(),
		listener: listener,
		model:    model,
		cfg:      cfg,
	}
}

// ID identifies the session in logs.
func (w *Worker) ID() string { return w.id }

// Run loops until ctx is cancelled. Every status message and transcription
// goes through report, on the calling goroutine. Nothing is reported once
// ctx is done.
func (w *Worker) Run(ctx context.Context, report func(string)) {
	emit := func(s string) {
		if ctx.Err() == nil {
			report(s)
		}
	}

	end := w.listener.Begin()
	defer end()

	start := time.Now()
	utterances := 0
	log.SessionStart(w.id, w.model.Name(), w.listener.DeviceName())
	defer func() { log.SessionEnd(w.id, utterances, time.Since(start)) }()

	calibrated := false
	for ctx.Err() == nil {
		if !calibrated {
			emit(MsgCalibrating)
			if err := w.listener.Calibrate(ctx, w.cfg.Calibration); err != nil {
				if ctx.Err() != nil {
					return
				}
				emit(fmt.Sprintf("Error: %s", err))
				w.pause(ctx)
				continue
			}
			calibrated = true
			emit(MsgReady)
			if w.cfg.OnReady != nil && ctx.Err() == nil {
				w.cfg.OnReady()
			}
		}

		utt, err := w.listener.Listen(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			emit(fmt.Sprintf("Error: %s", err))
			w.pause(ctx)
			continue
		}
		utterances++
		log.Utterance(w.id, utt.Duration(), w.listener.EnergyThreshold())

		emit(MsgProcessing)
		text, err := w.speechToText(ctx, utt)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, transcriber.ErrUnintelligible):
			emit(MsgUnintelligible)
		case errors.Is(err, transcriber.ErrUnavailable):
			emit(MsgUnavailable)
		case err != nil:
			emit(fmt.Sprintf("Error: %s", err))
		default:
			log.TranscriptionText(text)
			emit(text)
		}
	}
}

func (w *Worker) pause(ctx context.Context) {
	if w.cfg.ErrorPause <= 0 {
		return
	}
	t := time.NewTimer(w.cfg.ErrorPause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// speechToText writes utt to a fresh temp dir, runs the model on it and
// removes the dir again. Only the recognizer sentinels and cancellation
// come back as errors; anything else is folded into the returned text.
func (w *Worker) speechToText(ctx context.Context, utt *audio.Utterance) (string, error) {
	dir, err := os.MkdirTemp(w.cfg.TempDir, "scribe-")
	if err != nil {
		return transcriptionFailed(err), nil
	}
	defer removeTemp(dir)

	path := filepath.Join(dir, wavName)
	if err := audio.WriteWAV(path, utt); err != nil {
		return transcriptionFailed(err), nil
	}

	start := time.Now()
	text, err := w.model.Transcribe(ctx, path)
	if err == nil && strings.TrimSpace(text) == "" {
		err = transcriber.ErrUnintelligible
	}
	log.Transcription(w.id, w.model.Name(), time.Since(start), outcome(err))

	switch {
	case err == nil:
		return text, nil
	case errors.Is(err, transcriber.ErrUnintelligible),
		errors.Is(err, transcriber.ErrUnavailable),
		ctx.Err() != nil:
		return "", err
	default:
		return transcriptionFailed(err), nil
	}
}

func transcriptionFailed(err error) string {
	return fmt.Sprintf("Error during transcription: %s", err)
}

func removeTemp(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		log.TempCleanupFailed(dir, err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "text"
	case errors.Is(err, transcriber.ErrUnintelligible):
		return "unintelligible"
	case errors.Is(err, transcriber.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
