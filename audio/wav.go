package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavPCMFormat = 1

// WriteWAV stores the utterance as a 16-bit PCM WAV file at path.
func WriteWAV(path string, u *Utterance) error {
	if u == nil {
		return errors.New("write wav: nil utterance")
	}
	if len(u.PCM)%BytesPerFrame != 0 {
		return fmt.Errorf("write wav: pcm payload not aligned (%d bytes)", len(u.PCM))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write wav: %w", err)
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: Channels, SampleRate: u.SampleRate},
		Data:           make([]int, len(u.PCM)/BytesPerFrame),
		SourceBitDepth: BitsPerSample,
	}
	for i := range buf.Data {
		buf.Data[i] = int(int16(binary.LittleEndian.Uint16(u.PCM[i*2:])))
	}

	enc := wav.NewEncoder(f, u.SampleRate, BitsPerSample, Channels, wavPCMFormat)
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return f.Close()
}

// ReadWAV decodes a 16-bit PCM WAV file. Multi-channel input is downmixed to mono.
func ReadWAV(path string) (*Utterance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("read wav: %s is not a valid WAV file", path)
	}
	if dec.BitDepth != BitsPerSample {
		return nil, fmt.Errorf("read wav: unsupported bit depth %d", dec.BitDepth)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}

	chans := int(dec.NumChans)
	if chans < 1 {
		chans = 1
	}
	frames := len(buf.Data) / chans
	pcm := make([]byte, frames*BytesPerFrame)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < chans; c++ {
			sum += buf.Data[i*chans+c]
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(sum/chans)))
	}
	return &Utterance{PCM: pcm, SampleRate: int(dec.SampleRate)}, nil
}

// Float32Samples converts PCM16 to [-1, 1) floats as expected by whisper.
func (u *Utterance) Float32Samples() []float32 {
	n := len(u.PCM) / BytesPerFrame
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(int16(binary.LittleEndian.Uint16(u.PCM[i*2:]))) / 32768.0
	}
	return out
}
