//go:build !nogui

package gui

import (
	"sync/atomic"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"scribe/log"
	"scribe/shell"
)

type Options struct {
	Title  string
	Width  float32
	Height float32
	Dark   bool
}

// App is the window front-end. It implements shell.View; once the event
// loop runs, widget work is marshalled onto it with fyne.Do.
type App struct {
	fyneApp fyne.App
	window  fyne.Window

	status     binding.String
	transcript *fyne.Container
	scroll     *container.Scroll

	startBtn *widget.Button
	stopBtn  *widget.Button
	clearBtn *widget.Button
	copyBtn  *widget.Button

	shell   *shell.Shell
	running atomic.Bool
}

// New builds the window. It must run on the main goroutine.
func New(opts Options) *App {
	return newApp(app.NewWithID("io.scribe.app"), opts)
}

func newApp(fyneApp fyne.App, opts Options) *App {
	a := &App{
		fyneApp: fyneApp,
		status:  binding.NewString(),
	}
	a.fyneApp.Settings().SetTheme(newTheme(opts.Dark))
	if icon := iconResource(); icon != nil {
		a.fyneApp.SetIcon(icon)
	}

	a.window = a.fyneApp.NewWindow(opts.Title)
	a.window.Resize(fyne.NewSize(opts.Width, opts.Height))

	statusLabel := widget.NewLabelWithData(a.status)
	statusLabel.Alignment = fyne.TextAlignCenter
	statusLabel.TextStyle = fyne.TextStyle{Bold: true}

	a.transcript = container.NewVBox()
	a.scroll = container.NewVScroll(a.transcript)

	a.startBtn = widget.NewButtonWithIcon("Start Listening", theme.MediaRecordIcon(), a.onStart)
	a.startBtn.Importance = widget.HighImportance
	a.stopBtn = widget.NewButtonWithIcon("Stop Listening", theme.MediaStopIcon(), a.onStop)
	a.stopBtn.Disable()
	a.clearBtn = widget.NewButtonWithIcon("Clear Text", theme.DeleteIcon(), a.onClear)
	a.copyBtn = widget.NewButtonWithIcon("Copy Text", theme.ContentCopyIcon(), a.onCopy)

	buttons := container.NewGridWithColumns(2, a.startBtn, a.stopBtn, a.clearBtn, a.copyBtn)
	a.window.SetContent(container.NewBorder(statusLabel, buttons, nil, nil, a.scroll))
	a.window.SetCloseIntercept(a.onClose)
	a.fyneApp.Lifecycle().SetOnStarted(func() { a.running.Store(true) })
	return a
}

// Bind attaches the shell driven by the buttons.
func (a *App) Bind(s *shell.Shell) {
	a.shell = s
}

// Run shows the window and blocks until it is closed.
func (a *App) Run() {
	a.window.ShowAndRun()
}

func (a *App) onStart() {
	if err := a.shell.Start(); err != nil {
		log.Warnf("start: %v", err)
	}
}

func (a *App) onStop() {
	a.stopBtn.Disable()
	go a.shell.Stop()
}

func (a *App) onClear() {
	a.shell.Clear()
}

func (a *App) onCopy() {
	a.fyneApp.Clipboard().SetContent(a.shell.Text())
}

// Quit closes the window as if the user had, stopping the session first.
// Safe to call from any goroutine.
func (a *App) Quit() {
	fyne.Do(a.onClose)
}

// onClose stops the session before letting the window go away.
func (a *App) onClose() {
	a.startBtn.Disable()
	a.stopBtn.Disable()
	go func() {
		a.shell.Close()
		fyne.Do(a.window.Close)
	}()
}

// do applies fn directly until the event loop runs, then through fyne.Do.
func (a *App) do(fn func()) {
	if !a.running.Load() {
		fn()
		return
	}
	fyne.Do(fn)
}

func (a *App) SetStatus(text string) {
	a.do(func() { a.status.Set(text) })
}

func (a *App) SetListening(listening bool) {
	a.do(func() {
		if listening {
			a.startBtn.Disable()
			a.stopBtn.Enable()
		} else {
			a.startBtn.Enable()
			a.stopBtn.Disable()
		}
	})
}

func (a *App) Append(entry string) {
	a.do(func() {
		label := widget.NewLabel(entry)
		label.Wrapping = fyne.TextWrapWord
		label.Selectable = true
		a.transcript.Add(label)
		a.scroll.ScrollToBottom()
	})
}

func (a *App) Clear() {
	a.do(func() {
		a.transcript.RemoveAll()
		a.scroll.ScrollToTop()
	})
}
