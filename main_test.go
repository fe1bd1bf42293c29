package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"scribe/audio"
	"scribe/beep"
	"scribe/config"
	"scribe/shell"
	"scribe/transcriber"
	"scribe/worker"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{name: "defaults", args: nil, want: options{}},
		{name: "tui and device", args: []string{"-tui", "-device", "USB Mic"}, want: options{tui: true, device: "USB Mic"}},
		{name: "doctor with wav", args: []string{"-doctor", "speech.wav"}, want: options{doctor: true, doctorWAV: "speech.wav"}},
		{name: "config and logpath", args: []string{"-config", "c.yaml", "-logpath", "./"}, want: options{configPath: "c.yaml", logPath: "./"}},
		{name: "stray argument", args: []string{"speech.wav"}, wantErr: true},
		{name: "setup with device", args: []string{"-setup", "-device", "x"}, wantErr: true},
		{name: "unknown flag", args: []string{"-gui"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args, io.Discard)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseFlagsHelp(t *testing.T) {
	_, err := parseFlags([]string{"-h"}, io.Discard)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected flag.ErrHelp, got %v", err)
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Model.Backend = transcriber.BackendFake
	cfg.Worker.TempDir = t.TempDir()
	cfg.Audio.CalibrationMS = 200
	return cfg
}

func fakeContext(t *testing.T) func() (audio.Context, error) {
	t.Helper()
	pcm := append(audio.Silence(time.Second), audio.Tone(time.Second, 440, 8000)...)
	pcm = append(pcm, audio.Silence(time.Second)...)
	path := filepath.Join(t.TempDir(), "input.wav")
	if err := audio.WriteWAV(path, &audio.Utterance{PCM: pcm, SampleRate: audio.SampleRate}); err != nil {
		t.Fatal(err)
	}
	return func() (audio.Context, error) {
		return audio.NewFakeContext(path, false)
	}
}

func TestOpenSessionDevice(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audio.Device = "fake"
	s, err := openSession(cfg, fakeContext(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.model.Name() != transcriber.BackendFake {
		t.Errorf("model = %q", s.model.Name())
	}
	if s.listener == nil {
		t.Fatal("listener not created")
	}
}

func TestOpenSessionUnknownDevice(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audio.Device = "missing"
	_, err := openSession(cfg, fakeContext(t), nil)
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected device error, got %v", err)
	}
}

func TestOpenSessionAudioFailure(t *testing.T) {
	_, err := openSession(testConfig(t), func() (audio.Context, error) {
		return nil, errors.New("no server")
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "no server") {
		t.Fatalf("expected audio error, got %v", err)
	}
}

func TestOpenSessionPicker(t *testing.T) {
	cfg := testConfig(t)

	_, err := openSession(cfg, fakeContext(t), func(audio.Context) (*audio.DeviceInfo, error) {
		return nil, audio.ErrSelectionAborted
	})
	if !errors.Is(err, audio.ErrSelectionAborted) {
		t.Fatalf("expected ErrSelectionAborted, got %v", err)
	}

	var picked bool
	s, err := openSession(cfg, fakeContext(t), func(ctx audio.Context) (*audio.DeviceInfo, error) {
		picked = true
		return audio.FindDevice(ctx, "fake")
	})
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	if !picked {
		t.Error("picker not used")
	}
}

type memView struct {
	mu      sync.Mutex
	entries []string
}

func (v *memView) SetStatus(string)   {}
func (v *memView) SetListening(bool)  {}
func (v *memView) Clear()             {}
func (v *memView) Append(e string)    { v.mu.Lock(); v.entries = append(v.entries, e); v.mu.Unlock() }
func (v *memView) snapshot() []string { v.mu.Lock(); defer v.mu.Unlock(); return append([]string(nil), v.entries...) }

func TestSessionTranscribesFakeInput(t *testing.T) {
	beep.Disable()
	s, err := openSession(testConfig(t), fakeContext(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	view := &memView{}
	sh := s.newShell(view)
	if err := sh.Start(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !contains(view.snapshot(), "hello world") {
		if time.Now().After(deadline) {
			t.Fatalf("no transcription, got %q", view.snapshot())
		}
		time.Sleep(10 * time.Millisecond)
	}
	sh.Close()
	if sh.State() != shell.Idle {
		t.Errorf("state = %v after close", sh.State())
	}

	got := view.snapshot()
	want := []string{worker.MsgCalibrating, worker.MsgReady, worker.MsgProcessing, "hello world"}
	for i, w := range want {
		if i >= len(got) || got[i] != w {
			t.Fatalf("entries = %q, want prefix %q", got, want)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  []string
	}{
		{"", 10, []string{""}},
		{"short", 10, []string{"short"}},
		{"hello big world", 9, []string{"hello big", "world"}},
		{"abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"ñññ", 3, []string{"ñ", "ñ", "ñ"}},
		{"añb c", 3, []string{"añ", "b c"}},
		{"ñ", 1, []string{"ñ"}},
		{"grüße aus köln", 7, []string{"grüße", "aus", "köln"}},
	}
	for _, tt := range tests {
		got := wrapText(tt.text, tt.width)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("wrapText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
		}
		for _, line := range got {
			if !utf8.ValidString(line) {
				t.Errorf("wrapText(%q, %d) split a rune: %q", tt.text, tt.width, line)
			}
		}
	}
}

func TestTUIViewKeepsOrder(t *testing.T) {
	v := newTUIView()
	for i := 0; i < 50; i++ {
		v.Append(string(rune('a' + i%26)))
	}

	var mu sync.Mutex
	var got []tea.Msg
	done := make(chan struct{})
	go v.forward(func(msg tea.Msg) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	}, done)
	defer close(done)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 50 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("forwarded %d of 50", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	for i, msg := range got {
		want := string(rune('a' + i%26))
		if m, ok := msg.(appendMsg); !ok || m.Entry != want {
			t.Fatalf("message %d = %#v, want %q", i, msg, want)
		}
	}
}

func TestTUIModelUpdate(t *testing.T) {
	var m tea.Model = newTUIModel(nil, "fake", "fake")
	m, _ = m.Update(tea.WindowSizeMsg{Width: 60, Height: 20})
	m, _ = m.Update(listeningMsg{true})
	m, _ = m.Update(statusMsg{shell.StatusListening})
	m, _ = m.Update(appendMsg{"hello world"})
	m, _ = m.Update(appendMsg{worker.MsgUnavailable})

	tm := m.(tuiModel)
	if !tm.listening || tm.status != shell.StatusListening || len(tm.entries) != 2 {
		t.Fatalf("unexpected model state %+v", tm)
	}
	out := tm.View()
	for _, want := range []string{"LISTENING", "hello world", "[mic: fake | fake]"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}

	m, _ = m.Update(clearMsg{})
	if out := m.View(); !strings.Contains(out, "No transcriptions yet") {
		t.Error("cleared view should show placeholder")
	}

	_, cmd := m.Update(quitMsg{})
	if cmd == nil {
		t.Fatal("quitMsg should return tea.Quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("quitMsg did not produce tea.QuitMsg")
	}
}

func TestTUIKeysRunShell(t *testing.T) {
	view := newTUIView()
	runner := make(chan struct{}, 1)
	sh := shell.New(view, func() shell.Runner { return idleRunner{started: runner} })

	var m tea.Model = newTUIModel(sh, "fake", "fake")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if cmd == nil {
		t.Fatal("start key should return a command")
	}
	cmd()
	select {
	case <-runner:
	case <-time.After(time.Second):
		t.Fatal("runner not started")
	}
	if sh.State() != shell.Listening {
		t.Fatalf("state = %v", sh.State())
	}

	m, _ = m.Update(listeningMsg{true})
	m, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !m.(tuiModel).quitting {
		t.Error("q should mark the model as quitting")
	}
	if _, ok := cmd().(quitMsg); !ok {
		t.Error("quit command should report quitMsg")
	}
	if sh.State() != shell.Idle {
		t.Errorf("state = %v after quit", sh.State())
	}
}

type idleRunner struct{ started chan struct{} }

func (r idleRunner) ID() string { return "idle" }

func (r idleRunner) Run(ctx context.Context, _ func(string)) {
	r.started <- struct{}{}
	<-ctx.Done()
}
