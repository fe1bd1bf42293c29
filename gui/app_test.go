//go:build !nogui

package gui

import (
	"context"
	"testing"
	"time"

	"fyne.io/fyne/v2/test"

	"scribe/shell"
)

// heldRunner ignores cancellation until released, like a worker stuck in a
// model call.
type heldRunner struct {
	started chan struct{}
	release chan struct{}
}

func (r heldRunner) ID() string { return "held" }

func (r heldRunner) Run(ctx context.Context, report func(string)) {
	close(r.started)
	<-ctx.Done()
	<-r.release
}

func TestCloseWaitsForSession(t *testing.T) {
	a := newApp(test.NewApp(), Options{Title: "scribe", Width: 300, Height: 200})
	closed := make(chan struct{})
	a.window.SetOnClosed(func() { close(closed) })

	r := heldRunner{started: make(chan struct{}), release: make(chan struct{})}
	sh := shell.New(a, func() shell.Runner { return r }, shell.WithStopTimeout(5*time.Second))
	a.Bind(sh)

	if err := sh.Start(); err != nil {
		t.Fatal(err)
	}
	<-r.started

	a.onClose()
	select {
	case <-closed:
		t.Fatal("window closed while the session was still stopping")
	case <-time.After(100 * time.Millisecond):
	}
	if !a.startBtn.Disabled() || !a.stopBtn.Disabled() {
		t.Error("buttons should be disabled while closing")
	}

	close(r.release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("window not closed after the session stopped")
	}
	if sh.State() != shell.Idle {
		t.Errorf("state = %v after close", sh.State())
	}
}

func TestViewUpdatesTranscript(t *testing.T) {
	a := newApp(test.NewApp(), Options{Title: "scribe", Width: 300, Height: 200})
	a.Append("hello")
	a.Append("world")
	if n := len(a.transcript.Objects); n != 2 {
		t.Fatalf("transcript has %d entries, want 2", n)
	}
	a.SetStatus(shell.StatusListening)
	if got, _ := a.status.Get(); got != shell.StatusListening {
		t.Errorf("status = %q", got)
	}
	a.Clear()
	if n := len(a.transcript.Objects); n != 0 {
		t.Errorf("transcript has %d entries after clear", n)
	}
}
