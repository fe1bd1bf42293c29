package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

const fakeFrameSize = 1024

// FakeContext hands out FakeCaptures that replay a fixed PCM buffer.
type FakeContext struct {
	pcm      []byte
	realtime bool
}

// NewFakeContext loads a WAV file to replay. In realtime mode chunks are
// paced at the sample rate, otherwise they are delivered as fast as possible.
func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	utt, err := ReadWAV(wavPath)
	if err != nil {
		return nil, err
	}
	return &FakeContext{pcm: utt.PCM, realtime: realtime}, nil
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return NewFakeCapture(f.pcm, f.realtime), nil
}

// FakeCapture replays pcm from the beginning on every Start and then keeps
// delivering silence until Stop.
type FakeCapture struct {
	pcm      []byte
	realtime bool

	mu        sync.Mutex
	cb        DataCallback
	stopCh    chan struct{}
	feedDone  chan struct{}
	audioDone chan struct{}
	starts    int
}

func NewFakeCapture(pcm []byte, realtime bool) *FakeCapture {
	return &FakeCapture{pcm: pcm, realtime: realtime, audioDone: make(chan struct{})}
}

// AudioDone is closed once the scripted PCM of the current run has been delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audioDone
}

// Starts reports how many times Start has been called.
func (f *FakeCapture) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// Running reports whether the feed goroutine is active.
func (f *FakeCapture) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCh != nil
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	if f.stopCh != nil {
		f.mu.Unlock()
		return nil
	}
	f.starts++
	stopCh := make(chan struct{})
	feedDone := make(chan struct{})
	audioDone := f.audioDone
	f.stopCh, f.feedDone = stopCh, feedDone
	f.mu.Unlock()

	chunkBytes := fakeFrameSize * BytesPerFrame
	interval := time.Millisecond
	if f.realtime {
		interval = time.Duration(fakeFrameSize) * time.Second / time.Duration(SampleRate)
	}

	go func() {
		defer close(feedDone)
		pos := 0
		silence := make([]byte, chunkBytes)
		audioFinished := false
		for {
			select {
			case <-stopCh:
				return
			case <-time.After(interval):
			}

			cb := f.callback()
			if cb == nil {
				continue
			}
			if pos < len(f.pcm) {
				end := min(pos+chunkBytes, len(f.pcm))
				chunk := make([]byte, end-pos)
				copy(chunk, f.pcm[pos:end])
				cb(chunk, uint32(len(chunk)/BytesPerFrame))
				pos = end
				continue
			}
			if !audioFinished {
				audioFinished = true
				close(audioDone)
			}
			cb(silence, fakeFrameSize)
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stopCh, feedDone := f.stopCh, f.feedDone
	f.stopCh, f.feedDone = nil, nil
	f.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-feedDone

	f.mu.Lock()
	select {
	case <-f.audioDone:
		f.audioDone = make(chan struct{}) // reset for replay
	default:
	}
	f.mu.Unlock()
}

func (f *FakeCapture) Close() { f.Stop() }

// Silence returns d of zeroed PCM16 at SampleRate.
func Silence(d time.Duration) []byte {
	return make([]byte, framesFor(d)*BytesPerFrame)
}

// Tone returns d of a sine wave at freq Hz with the given peak amplitude.
func Tone(d time.Duration, freq float64, amplitude int16) []byte {
	n := framesFor(d)
	pcm := make([]byte, n*BytesPerFrame)
	for i := 0; i < n; i++ {
		v := float64(amplitude) * math.Sin(2*math.Pi*freq*float64(i)/SampleRate)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	return pcm
}

func framesFor(d time.Duration) int {
	return int(d.Seconds() * SampleRate)
}
