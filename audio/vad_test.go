package audio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewVoiceGate(t *testing.T) {
	for _, kind := range []string{"", VADEnergy} {
		gate, err := newVoiceGate(kind)
		if err != nil || gate != nil {
			t.Errorf("newVoiceGate(%q) = %v, %v; want no gate", kind, gate, err)
		}
	}
	if _, err := newVoiceGate("neural"); err == nil {
		t.Error("unknown vad accepted")
	}
	gate, err := newVoiceGate(VADWebRTC)
	if err != nil || gate == nil {
		t.Fatalf("newVoiceGate(webrtc) = %v, %v", gate, err)
	}
	for i := 0; i < 10; i++ {
		if gate.Voiced(Silence(64 * time.Millisecond)) {
			t.Fatal("silence confirmed as voice")
		}
	}
}

func TestFrameGateDebounce(t *testing.T) {
	var pattern []bool
	g := &frameGate{classify: func([]byte) (bool, error) {
		v := pattern[0]
		pattern = pattern[1:]
		return v, nil
	}}
	frame := make([]byte, vadFrameBytes)

	pattern = []bool{true, true, false}
	if g.Voiced(append(append(frame, frame...), frame...)) {
		t.Fatal("run broken by an unvoiced frame still confirmed")
	}

	// the run spans calls and half frames wait for the next chunk
	pattern = []bool{true, true}
	if g.Voiced(append(frame, frame[:vadFrameBytes/2]...)) {
		t.Fatal("confirmed after one frame")
	}
	if g.Voiced(frame[:vadFrameBytes/2]) {
		t.Fatal("confirmed after two frames")
	}
	pattern = []bool{true}
	if !g.Voiced(frame) {
		t.Fatal("three voiced frames not confirmed")
	}

	g.Reset()
	pattern = []bool{true}
	if g.Voiced(frame) {
		t.Fatal("run survived Reset")
	}
}

func TestFrameGateSkipsClassifierErrors(t *testing.T) {
	calls := 0
	g := &frameGate{classify: func([]byte) (bool, error) {
		calls++
		if calls == 2 {
			return false, errors.New("bad frame")
		}
		return true, nil
	}}
	if !g.Voiced(make([]byte, 4*vadFrameBytes)) {
		t.Error("an errored frame should not reset the run")
	}
}

type stubGate struct{ voiced bool }

func (g stubGate) Voiced([]byte) bool { return g.voiced }
func (g stubGate) Reset()             {}

func gatedListener(pcm []byte, gate voiceGate) *Listener {
	l, _ := fixedListener(pcm)
	l.gate, l.gateReady = gate, true
	return l
}

func TestListenRequiresVoice(t *testing.T) {
	pcm := script(Silence(time.Second), Tone(time.Second, 440, 8000), Silence(2*time.Second))

	t.Run("confirmed", func(t *testing.T) {
		l := gatedListener(pcm, stubGate{voiced: true})
		defer l.Close()
		if utt := listenWithin(t, l, 5*time.Second); len(utt.PCM) == 0 {
			t.Fatal("empty utterance")
		}
	})
	t.Run("loud but not voice", func(t *testing.T) {
		l := gatedListener(pcm, stubGate{voiced: false})
		defer l.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		if utt, err := l.Listen(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Listen = %v, %v; want no utterance", utt, err)
		}
	})
}

func TestListenUnknownVAD(t *testing.T) {
	cfg := DefaultListenConfig()
	cfg.VAD = "neural"
	l := NewListener(NewFakeCapture(nil, false), cfg)
	defer l.Close()
	if _, err := l.Listen(context.Background()); err == nil {
		t.Fatal("Listen with unknown vad should fail")
	}
}
