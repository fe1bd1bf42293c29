// Package shell holds the presentation state shared by the window and
// terminal front-ends: whether a session is running, and the transcript.
package shell

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"scribe/log"
)

const (
	StatusIdle      = "🎤 Click 'Start' and speak..."
	StatusListening = "🔴 Listening..."

	DefaultStopTimeout = 3 * time.Second
)

var ErrAlreadyListening = errors.New("already listening")

// View renders shell state. Implementations must not block and must not
// call back into the Shell synchronously; they are invoked with the shell
// lock held, possibly from a worker goroutine.
type View interface {
	SetStatus(text string)
	SetListening(listening bool)
	Append(entry string)
	Clear()
}

// Runner is one listening session.
type Runner interface {
	ID() string
	Run(ctx context.Context, report func(string))
}

type State int

const (
	Idle State = iota
	Listening
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Stopping:
		return "stopping"
	}
	return "unknown"
}

type Option func(*Shell)

func WithStopTimeout(d time.Duration) Option {
	return func(s *Shell) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// WithOnStop registers a hook run after every completed Stop.
func WithOnStop(fn func()) Option {
	return func(s *Shell) { s.onStop = fn }
}

type Shell struct {
	view        View
	newRunner   func() Runner
	stopTimeout time.Duration
	onStop      func()

	mu         sync.Mutex
	state      State
	gen        uint64
	cancel     context.CancelFunc
	done       chan struct{}
	runnerID   string
	stopped    chan struct{} // closed when the in-flight Stop finishes
	transcript []string
}

func New(view View, newRunner func() Runner, opts ...Option) *Shell {
	s := &Shell{
		view:        view,
		newRunner:   newRunner,
		stopTimeout: DefaultStopTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	s.view.SetListening(false)
	s.view.SetStatus(StatusIdle)
	return s
}

func (s *Shell) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start launches a new session. It fails with ErrAlreadyListening unless
// the shell is idle.
func (s *Shell) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return ErrAlreadyListening
	}

	r := s.newRunner()
	ctx, cancel := context.WithCancel(context.Background())
	s.gen++
	gen := s.gen
	done := make(chan struct{})
	s.state, s.cancel, s.done, s.runnerID = Listening, cancel, done, r.ID()

	s.view.SetListening(true)
	s.view.SetStatus(StatusListening)

	go func() {
		defer close(done)
		r.Run(ctx, func(text string) { s.deliver(gen, text) })
	}()
	return nil
}

// deliver appends text unless the session that produced it has ended.
func (s *Shell) deliver(gen uint64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Listening || gen != s.gen {
		return
	}
	s.transcript = append(s.transcript, text)
	s.view.Append(text)
}

// Stop cancels the running session and waits for it to exit, at most the
// stop timeout. Concurrent calls all return once that wait is over. A
// session stuck in a call that ignores cancellation is abandoned; nothing
// it reports afterwards reaches the transcript.
func (s *Shell) Stop() {
	s.mu.Lock()
	switch s.state {
	case Idle:
		s.showIdle()
		s.mu.Unlock()
		return
	case Stopping:
		stopped := s.stopped
		s.mu.Unlock()
		<-stopped
		return
	}
	s.state = Stopping
	stopped := make(chan struct{})
	s.stopped = stopped
	cancel, done, id := s.cancel, s.done, s.runnerID
	s.mu.Unlock()
	defer close(stopped)

	cancel()
	t := time.NewTimer(s.stopTimeout)
	select {
	case <-done:
	case <-t.C:
		log.WorkerJoinTimeout(id, s.stopTimeout)
	}
	t.Stop()

	s.mu.Lock()
	s.state, s.cancel, s.done, s.runnerID, s.stopped = Idle, nil, nil, "", nil
	s.showIdle()
	s.mu.Unlock()

	if s.onStop != nil {
		s.onStop()
	}
}

func (s *Shell) showIdle() {
	s.view.SetListening(false)
	s.view.SetStatus(StatusIdle)
}

// Clear empties the transcript without touching the session.
func (s *Shell) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = nil
	s.view.Clear()
}

// Entries returns a copy of the transcript.
func (s *Shell) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.transcript...)
}

// Text returns the transcript, one entry per line.
func (s *Shell) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.transcript, "\n")
}

// Close stops any session; front-ends call it before their window goes away.
func (s *Shell) Close() {
	s.Stop()
}
