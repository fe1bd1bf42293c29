//go:build !nogui

package main

import (
	"scribe/gui"
	"scribe/shutdown"
)

const guiAvailable = true

// runGUI must run on the main goroutine; fyne owns it until the window closes.
func runGUI(s *session) int {
	a := gui.New(gui.Options{
		Title:  s.cfg.Window.Title,
		Width:  float32(s.cfg.Window.Width),
		Height: float32(s.cfg.Window.Height),
		Dark:   s.cfg.Window.Dark,
	})
	sh := s.newShell(a)
	a.Bind(sh)

	stop := shutdown.OnSignal(a.Quit)
	defer stop()

	a.Run()
	sh.Close()
	return 0
}
