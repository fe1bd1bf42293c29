package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const (
	chunkFrames      = 1024
	chunkBytes       = chunkFrames * BytesPerFrame
	chunkQueueLen    = 512
	dynamicDamping   = 0.15
	dynamicRatio     = 1.5
	minEnergyDefault = 300
)

var ErrCaptureClosed = errors.New("capture device closed")

type ListenConfig struct {
	SampleRate      int
	EnergyThreshold float64
	DynamicEnergy   bool
	Pause           time.Duration // silence that ends a phrase
	PhraseMin       time.Duration // shorter phrases are discarded
	NonSpeaking     time.Duration // silence kept on both sides of a phrase
	PhraseLimit     time.Duration // 0 = unlimited
	// VAD picks the onset check: VADEnergy uses the threshold alone,
	// VADWebRTC also requires the webrtc classifier to hear voice.
	VAD string
}

func DefaultListenConfig() ListenConfig {
	return ListenConfig{
		SampleRate:      SampleRate,
		EnergyThreshold: minEnergyDefault,
		DynamicEnergy:   true,
		Pause:           800 * time.Millisecond,
		PhraseMin:       300 * time.Millisecond,
		NonSpeaking:     500 * time.Millisecond,
		VAD:             VADEnergy,
	}
}

// Listener turns the continuous stream of a CaptureDevice into utterances.
//
// Calls are serialised: only one Listen or Calibrate runs at a time. Both
// return ctx.Err() once ctx is cancelled and stop the device stream; a chunk
// already being read is the only span that cannot be interrupted. Between
// calls the stream keeps running until the session that started it ends
// (see Begin), so no audio is lost while an utterance is being transcribed.
type Listener struct {
	capture CaptureDevice
	cfg     ListenConfig

	mu        sync.Mutex
	chunks    chan []byte
	pending   []byte
	running   bool
	closed    bool
	threshold float64
	gate      voiceGate
	gateReady bool
	dropped   atomic.Int64
	session   atomic.Uint64
}

func NewListener(capture CaptureDevice, cfg ListenConfig) *Listener {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = SampleRate
	}
	l := &Listener{
		capture:   capture,
		cfg:       cfg,
		chunks:    make(chan []byte, chunkQueueLen),
		threshold: cfg.EnergyThreshold,
	}
	capture.SetCallback(l.onData)
	return l
}

func (l *Listener) onData(data []byte, _ uint32) {
	if len(data) == 0 {
		return
	}
	pcm := make([]byte, len(data))
	copy(pcm, data)
	select {
	case l.chunks <- pcm:
	default:
		l.dropped.Add(1)
	}
}

// EnergyThreshold returns the current speech/silence RMS boundary.
func (l *Listener) EnergyThreshold() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.threshold
}

// Dropped reports how many device buffers were discarded because nobody was reading.
func (l *Listener) Dropped() int64 { return l.dropped.Load() }

func (l *Listener) DeviceName() string { return l.capture.DeviceName() }

func (l *Listener) chunkDuration() float64 {
	return float64(chunkFrames) / float64(l.cfg.SampleRate)
}

func (l *Listener) chunksFor(d time.Duration) int {
	return int(math.Ceil(d.Seconds() / l.chunkDuration()))
}

func (l *Listener) ensureRunning() error {
	if l.closed {
		return ErrCaptureClosed
	}
	if !l.gateReady {
		gate, err := newVoiceGate(l.cfg.VAD)
		if err != nil {
			return err
		}
		l.gate, l.gateReady = gate, true
	}
	if l.running {
		return nil
	}
	l.discard()
	if err := l.capture.Start(); err != nil {
		return err
	}
	l.running = true
	return nil
}

// discard drops buffered audio that predates the current stream.
func (l *Listener) discard() {
	l.pending = l.pending[:0]
	for {
		select {
		case <-l.chunks:
		default:
			return
		}
	}
}

// Begin marks the start of a capture session. The returned func stops the
// device stream unless another session has begun since; callers defer it
// so the microphone is released however the session ends.
func (l *Listener) Begin() (end func()) {
	id := l.session.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			// A superseded session must not wait on the newer one's Listen.
			if l.session.Load() != id {
				return
			}
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.session.Load() == id {
				l.halt()
			}
		})
	}
}

// Running reports whether the device stream is open.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Listener) halt() {
	if !l.running {
		return
	}
	l.capture.Stop()
	l.running = false
	l.discard()
	if l.gate != nil {
		l.gate.Reset()
	}
}

// next returns exactly one chunk of chunkBytes, reframing device buffers.
func (l *Listener) next(ctx context.Context) ([]byte, error) {
	for len(l.pending) < chunkBytes {
		select {
		case <-ctx.Done():
			l.halt()
			return nil, ctx.Err()
		case data := <-l.chunks:
			l.pending = append(l.pending, data...)
		}
	}
	chunk := make([]byte, chunkBytes)
	copy(chunk, l.pending[:chunkBytes])
	l.pending = append(l.pending[:0], l.pending[chunkBytes:]...)
	return chunk, nil
}

func (l *Listener) adapt(energy float64) {
	damping := math.Pow(dynamicDamping, l.chunkDuration())
	target := energy * dynamicRatio
	l.threshold = l.threshold*damping + target*(1-damping)
}

// Calibrate listens for d and moves the energy threshold towards the
// ambient noise level.
func (l *Listener) Calibrate(ctx context.Context, d time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureRunning(); err != nil {
		return err
	}
	n := l.chunksFor(d)
	for i := 0; i < n; i++ {
		chunk, err := l.next(ctx)
		if err != nil {
			return err
		}
		l.adapt(RMS(chunk))
	}
	return nil
}

// Listen blocks until one utterance has been captured.
func (l *Listener) Listen(ctx context.Context) (*Utterance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureRunning(); err != nil {
		return nil, err
	}

	pauseChunks := l.chunksFor(l.cfg.Pause)
	phraseChunks := l.chunksFor(l.cfg.PhraseMin)
	nonSpeakingChunks := l.chunksFor(l.cfg.NonSpeaking)
	limitChunks := 0
	if l.cfg.PhraseLimit > 0 {
		limitChunks = l.chunksFor(l.cfg.PhraseLimit)
	}

	preroll := max(nonSpeakingChunks, 1)
	for {
		var frames [][]byte
		if l.gate != nil {
			l.gate.Reset()
		}

		// wait for speech, keeping a short pre-roll
		for {
			chunk, err := l.next(ctx)
			if err != nil {
				return nil, err
			}
			frames = append(frames, chunk)
			if len(frames) > preroll {
				frames = frames[1:]
			}
			energy := RMS(chunk)
			if l.onset(chunk, energy) {
				break
			}
			if l.cfg.DynamicEnergy {
				l.adapt(energy)
			}
		}

		phraseCount, pauseCount := 1, 0
		for {
			chunk, err := l.next(ctx)
			if err != nil {
				return nil, err
			}
			frames = append(frames, chunk)
			phraseCount++
			if RMS(chunk) > l.threshold {
				pauseCount = 0
			} else {
				pauseCount++
			}
			if pauseCount > pauseChunks {
				break
			}
			if limitChunks > 0 && phraseCount >= limitChunks {
				break
			}
		}

		if phraseCount-pauseCount < phraseChunks {
			continue
		}

		if trim := pauseCount - nonSpeakingChunks; trim > 0 && trim < len(frames) {
			frames = frames[:len(frames)-trim]
		}
		pcm := make([]byte, 0, len(frames)*chunkBytes)
		for _, f := range frames {
			pcm = append(pcm, f...)
		}
		return &Utterance{PCM: pcm, SampleRate: l.cfg.SampleRate}, nil
	}
}

// onset reports whether chunk starts a phrase. The gate sees every chunk so
// its run of voiced frames can span chunk boundaries.
func (l *Listener) onset(chunk []byte, energy float64) bool {
	if l.gate == nil {
		return energy > l.threshold
	}
	voiced := l.gate.Voiced(chunk)
	return energy > l.threshold && voiced
}

// Close stops the device stream and detaches the listener from it. Pending
// Listen calls must be cancelled first.
func (l *Listener) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.halt()
	l.closed = true
	l.capture.ClearCallback()
}

// RMS returns the root mean square of PCM16 samples, in sample units.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sumSquares float64
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:])))
		sumSquares += s * s
	}
	return math.Sqrt(sumSquares / float64(n))
}
