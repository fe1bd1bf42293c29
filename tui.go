package main

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"scribe/clipboard"
	"scribe/shell"
	"scribe/shutdown"
	"scribe/worker"
)

// TUI message types
type statusMsg struct{ Text string }
type listeningMsg struct{ Listening bool }
type appendMsg struct{ Entry string }
type clearMsg struct{}
type noticeMsg struct{ Text string }
type quitMsg struct{}

// tuiView queues shell updates for the bubbletea program. It never blocks
// the caller, which may hold the shell lock while the event loop is busy
// running a command that waits on that lock.
type tuiView struct {
	mu    sync.Mutex
	queue []tea.Msg
	wake  chan struct{}
}

func newTUIView() *tuiView {
	return &tuiView{wake: make(chan struct{}, 1)}
}

func (v *tuiView) send(msg tea.Msg) {
	v.mu.Lock()
	v.queue = append(v.queue, msg)
	v.mu.Unlock()
	select {
	case v.wake <- struct{}{}:
	default:
	}
}

// drain takes every queued message, oldest first.
func (v *tuiView) drain() []tea.Msg {
	v.mu.Lock()
	defer v.mu.Unlock()
	batch := v.queue
	v.queue = nil
	return batch
}

// forward delivers queued messages in order until done is closed.
func (v *tuiView) forward(send func(tea.Msg), done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-v.wake:
		}
		for _, msg := range v.drain() {
			send(msg)
		}
	}
}

func (v *tuiView) SetStatus(text string)       { v.send(statusMsg{text}) }
func (v *tuiView) SetListening(listening bool) { v.send(listeningMsg{listening}) }
func (v *tuiView) Append(entry string)         { v.send(appendMsg{entry}) }
func (v *tuiView) Clear()                      { v.send(clearMsg{}) }

type tuiModel struct {
	shell     *shell.Shell
	device    string
	backend   string
	status    string
	listening bool
	entries   []string
	notice    string
	quitting  bool
	width     int
	height    int
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231"))
	recStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	standbyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

func newTUIModel(sh *shell.Shell, device, backend string) tuiModel {
	return tuiModel{
		shell:   sh,
		device:  device,
		backend: backend,
		status:  shell.StatusIdle,
	}
}

func (m tuiModel) Init() tea.Cmd {
	return nil
}

// Shell calls can block on a worker join, so they run as commands off the
// event loop.
func (m tuiModel) startCmd() tea.Cmd {
	sh := m.shell
	return func() tea.Msg {
		if err := sh.Start(); err != nil {
			return noticeMsg{err.Error()}
		}
		return nil
	}
}

func (m tuiModel) stopCmd() tea.Cmd {
	sh := m.shell
	return func() tea.Msg {
		sh.Stop()
		return nil
	}
}

func (m tuiModel) copyCmd() tea.Cmd {
	sh := m.shell
	return func() tea.Msg {
		text := sh.Text()
		if err := clipboard.Copy(text); err != nil {
			return noticeMsg{"copy failed: " + err.Error()}
		}
		return noticeMsg{"[✓ copied]"}
	}
}

func (m tuiModel) quitCmd() tea.Cmd {
	sh := m.shell
	return func() tea.Msg {
		sh.Close()
		return quitMsg{}
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		m.notice = ""
		switch msg.String() {
		case "s":
			if !m.listening {
				return m, m.startCmd()
			}
		case "x":
			if m.listening {
				return m, m.stopCmd()
			}
		case "c":
			m.shell.Clear()
		case "y":
			return m, m.copyCmd()
		case "q", "ctrl+c":
			m.quitting = true
			m.notice = "stopping..."
			return m, m.quitCmd()
		}

	case statusMsg:
		m.status = msg.Text

	case listeningMsg:
		m.listening = msg.Listening

	case appendMsg:
		m.entries = append(m.entries, msg.Entry)

	case clearMsg:
		m.entries = nil

	case noticeMsg:
		m.notice = msg.Text

	case quitMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var header []string
	state := standbyStyle.Render("○ STANDBY")
	if m.listening {
		state = recStyle.Render("● LISTENING")
	}
	header = append(header, titleStyle.Render("Real-Time Speech-to-Text")+"  "+state)
	header = append(header, m.status)
	header = append(header, infoStyle.Render(fmt.Sprintf("[mic: %s | %s]", m.device, m.backend)))
	header = append(header, "")

	footer := []string{""}
	if m.notice != "" {
		footer = append(footer, noticeStyle.Render(m.notice))
	}
	footer = append(footer, helpLine())

	wrapWidth := m.width - 2
	if wrapWidth < 10 {
		wrapWidth = 10
	}
	var body []string
	for _, entry := range m.entries {
		style := textStyle
		if isErrorEntry(entry) {
			style = errorStyle
		}
		for _, line := range wrapText(entry, wrapWidth) {
			body = append(body, style.Render(line))
		}
	}
	if len(body) == 0 {
		body = append(body, standbyStyle.Render("No transcriptions yet"))
	}

	// Newest entries stay visible.
	room := m.height - len(header) - len(footer)
	if room < 1 {
		room = 1
	}
	if len(body) > room {
		body = body[len(body)-room:]
	}

	lines := append(header, body...)
	for len(lines)+len(footer) < m.height {
		lines = append(lines, "")
	}
	lines = append(lines, footer...)
	return lipgloss.NewStyle().PaddingLeft(1).Render(strings.Join(lines, "\n"))
}

func helpLine() string {
	keys := []struct{ key, action string }{
		{"s", "start"}, {"x", "stop"}, {"c", "clear"}, {"y", "copy"}, {"q", "quit"},
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = keyStyle.Render(k.key) + helpStyle.Render(" "+k.action)
	}
	return strings.Join(parts, helpStyle.Render("  "))
}

func isErrorEntry(entry string) bool {
	return strings.HasPrefix(entry, "Error") ||
		entry == worker.MsgUnintelligible ||
		entry == worker.MsgUnavailable
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width, else cut on a rune boundary
		splitAt := strings.LastIndexByte(text[:width+1], ' ')
		if splitAt <= 0 {
			splitAt = width
			for splitAt > 0 && !utf8.RuneStart(text[splitAt]) {
				splitAt--
			}
			if splitAt == 0 {
				_, splitAt = utf8.DecodeRuneInString(text)
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}

func runTUI(s *session) int {
	view := newTUIView()
	sh := s.newShell(view)
	model := newTUIModel(sh, s.listener.DeviceName(), s.model.Name())
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithoutSignalHandler())

	done := make(chan struct{})
	go view.forward(p.Send, done)
	defer close(done)

	stop := shutdown.OnSignal(func() { p.Send(tea.KeyMsg{Type: tea.KeyCtrlC}) })
	defer stop()

	_, err := p.Run()
	sh.Close()
	if err != nil {
		return fatal("terminal UI: %v", err)
	}
	return 0
}
