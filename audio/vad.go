package audio

import (
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

const (
	VADEnergy = "energy"
	VADWebRTC = "webrtc"

	vadMode       = 3
	vadFrameMs    = 20
	vadFrameBytes = SampleRate * vadFrameMs / 1000 * BytesPerFrame // 640 bytes
	vadDebounce   = 3                                              // consecutive speech frames to confirm voice
)

// voiceGate confirms that audio loud enough to start a phrase is speech.
type voiceGate interface {
	// Voiced feeds one chunk and reports whether voice is confirmed.
	Voiced(chunk []byte) bool
	Reset()
}

func newVoiceGate(kind string) (voiceGate, error) {
	switch kind {
	case "", VADEnergy:
		return nil, nil
	case VADWebRTC:
		v, err := webrtcvad.New()
		if err != nil {
			return nil, fmt.Errorf("VAD init: %w", err)
		}
		if err := v.SetMode(vadMode); err != nil {
			return nil, fmt.Errorf("VAD mode: %w", err)
		}
		return &frameGate{classify: func(frame []byte) (bool, error) {
			return v.Process(SampleRate, frame)
		}}, nil
	default:
		return nil, fmt.Errorf("unknown vad %q", kind)
	}
}

// frameGate reframes chunks into 20 ms frames and confirms voice after
// vadDebounce consecutive voiced frames. The run carries across chunks.
type frameGate struct {
	classify  func(frame []byte) (bool, error)
	buf       []byte
	speechRun int
}

func (g *frameGate) Voiced(chunk []byte) bool {
	g.buf = append(g.buf, chunk...)
	for len(g.buf) >= vadFrameBytes {
		frame := g.buf[:vadFrameBytes]
		active, err := g.classify(frame)
		g.buf = g.buf[vadFrameBytes:]
		if err != nil {
			continue
		}
		if active {
			g.speechRun++
		} else {
			g.speechRun = 0
		}
	}
	g.buf = append([]byte(nil), g.buf...)
	return g.speechRun >= vadDebounce
}

func (g *frameGate) Reset() {
	g.buf = g.buf[:0]
	g.speechRun = 0
}
