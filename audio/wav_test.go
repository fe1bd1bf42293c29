package audio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func TestWriteReadWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "utt.wav")
	in := &Utterance{PCM: Tone(250*time.Millisecond, 440, 6000), SampleRate: SampleRate}

	if err := WriteWAV(path, in); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	out, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if out.SampleRate != SampleRate {
		t.Errorf("SampleRate = %d, want %d", out.SampleRate, SampleRate)
	}
	if len(out.PCM) != len(in.PCM) {
		t.Fatalf("len(PCM) = %d, want %d", len(out.PCM), len(in.PCM))
	}
	for i := range in.PCM {
		if in.PCM[i] != out.PCM[i] {
			t.Fatalf("PCM differs at byte %d", i)
		}
	}
}

func TestWriteWAVRejectsOddPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "odd.wav")
	if err := WriteWAV(path, &Utterance{PCM: []byte{1, 2, 3}, SampleRate: SampleRate}); err == nil {
		t.Error("expected error for misaligned PCM")
	}
	if err := WriteWAV(path, nil); err == nil {
		t.Error("expected error for nil utterance")
	}
}

func TestReadWAVDownmixesStereo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: SampleRate},
		Data:           []int{1000, 3000, -2000, -4000},
		SourceBitDepth: 16,
	}
	enc := wav.NewEncoder(f, SampleRate, 16, 2, 1)
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	utt, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if len(utt.PCM) != 4 {
		t.Fatalf("len(PCM) = %d, want 4", len(utt.PCM))
	}
	got := []int16{
		int16(binary.LittleEndian.Uint16(utt.PCM[0:])),
		int16(binary.LittleEndian.Uint16(utt.PCM[2:])),
	}
	if got[0] != 2000 || got[1] != -3000 {
		t.Errorf("samples = %v, want [2000 -3000]", got)
	}
}

func TestReadWAVInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	os.WriteFile(path, []byte("definitely not riff"), 0o644)
	if _, err := ReadWAV(path); err == nil {
		t.Error("expected error for junk file")
	}
}

func TestUtteranceDuration(t *testing.T) {
	u := &Utterance{PCM: Silence(1500 * time.Millisecond), SampleRate: SampleRate}
	if got := u.Duration(); got != 1500*time.Millisecond {
		t.Errorf("Duration = %v, want 1.5s", got)
	}
	var nilUtt *Utterance
	if got := nilUtt.Duration(); got != 0 {
		t.Errorf("nil Duration = %v, want 0", got)
	}
}

func TestFloat32Samples(t *testing.T) {
	pcm := make([]byte, 4)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(16384))
	v := int16(-32768)
	binary.LittleEndian.PutUint16(pcm[2:], uint16(v))
	got := (&Utterance{PCM: pcm, SampleRate: SampleRate}).Float32Samples()
	if got[0] != 0.5 || got[1] != -1 {
		t.Errorf("samples = %v, want [0.5 -1]", got)
	}
}
