//go:build nogui

package main

const guiAvailable = false

func runGUI(s *session) int {
	return runTUI(s)
}
