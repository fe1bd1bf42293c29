//go:build !whisper

package transcriber

import (
	"context"
	"errors"
)

const WhisperAvailable = false

var errWhisperDisabled = errors.New("whisper backend not compiled in (build with -tags whisper, or set model.backend to exec or server)")

type Whisper struct{}

func NewWhisper(Config) (*Whisper, error) {
	return nil, errWhisperDisabled
}

func (w *Whisper) Name() string { return BackendWhisper }

func (w *Whisper) Transcribe(context.Context, string) (string, error) {
	return "", errWhisperDisabled
}

func (w *Whisper) Close() error { return nil }
