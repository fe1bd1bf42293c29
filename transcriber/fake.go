package transcriber

import (
	"context"
	"os"
	"sync"
)

// FakeResult is one scripted answer of a Fake.
type FakeResult struct {
	Text string
	Err  error
}

// FakeCall records one Transcribe invocation.
type FakeCall struct {
	Path   string
	Exists bool // whether Path was on disk when the call started
}

// Fake answers Transcribe calls from a script. When the script is exhausted
// the last entry repeats.
type Fake struct {
	mu      sync.Mutex
	script  []FakeResult
	calls   []FakeCall
	block   chan struct{}
	closed  bool
	entered chan struct{}
}

func NewFake(text string) *Fake {
	return NewScriptedFake(FakeResult{Text: text})
}

func NewScriptedFake(script ...FakeResult) *Fake {
	if len(script) == 0 {
		script = []FakeResult{{Err: ErrUnintelligible}}
	}
	return &Fake{script: script, entered: make(chan struct{}, 64)}
}

// Block makes every following Transcribe call wait until the returned
// release func is called, ignoring ctx like a native model call would.
func (f *Fake) Block() (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.block = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Entered receives one value each time Transcribe is called.
func (f *Fake) Entered() <-chan struct{} { return f.entered }

func (f *Fake) Name() string { return BackendFake }

func (f *Fake) Transcribe(_ context.Context, wavPath string) (string, error) {
	_, statErr := os.Stat(wavPath)
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Path: wavPath, Exists: statErr == nil})
	res := f.script[0]
	if len(f.script) > 1 {
		f.script = f.script[1:]
	}
	block := f.block
	f.mu.Unlock()

	select {
	case f.entered <- struct{}{}:
	default:
	}
	if block != nil {
		<-block
	}
	if res.Err != nil {
		return "", res.Err
	}
	return normalize(res.Text)
}

func (f *Fake) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}
