// Package shutdown turns termination signals into an orderly stop.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
)

func Notify(ch chan os.Signal) {
	signal.Notify(ch, signals...)
}

// OnSignal runs fn once, on its own goroutine, when the process receives
// an interrupt or terminate signal. The returned func unregisters the
// handler; fn is not called after it returns.
func OnSignal(fn func()) (stop func()) {
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	Notify(ch)
	go func() {
		select {
		case <-ch:
			fn()
		case <-done:
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}
