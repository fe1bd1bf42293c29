package beep

import (
	"math"
	"testing"
)

func TestTickShape(t *testing.T) {
	s := tick(1000, 0.1, 0.5, 40, 2)
	if want := int(sampleRate*0.1) * 2; len(s) != want {
		t.Fatalf("len = %d, want %d", len(s), want)
	}
	for i := 0; i < len(s); i += 2 {
		if s[i] != s[i+1] {
			t.Fatalf("channels differ at frame %d", i/2)
		}
	}
	peak := func(from, to int) float64 {
		var p float64
		for _, v := range s[from:to] {
			p = math.Max(p, math.Abs(float64(v)))
		}
		return p
	}
	head, tail := peak(0, 400), peak(len(s)-400, len(s))
	if head > 0.5*32767+1 {
		t.Errorf("peak %v exceeds volume", head)
	}
	if tail >= head/2 {
		t.Errorf("tail peak %v not decayed from %v", tail, head)
	}
}

func TestDisable(t *testing.T) {
	t.Cleanup(func() { disabled.Store(false) })
	if !Enabled() {
		t.Fatal("enabled by default")
	}
	Disable()
	if Enabled() {
		t.Error("still enabled after Disable")
	}
	PlayStart() // no-op, must not touch audio hardware
}
