package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"scribe/audio"
	"scribe/beep"
	"scribe/config"
	"scribe/doctor"
	"scribe/log"
	"scribe/shell"
	"scribe/transcriber"
	"scribe/worker"
)

var version = "dev"

type options struct {
	configPath string
	logPath    string
	device     string
	tui        bool
	setup      bool
	doctor     bool
	doctorWAV  string
	version    bool
}

func parseFlags(args []string, errOut io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("scribe", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&o.configPath, "config", "", "config file (default: $"+config.EnvConfigPath+" or the user config dir)")
	fs.StringVar(&o.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.StringVar(&o.device, "device", "", "Use named microphone device")
	fs.BoolVar(&o.tui, "tui", false, "Run the terminal front-end instead of the window")
	fs.BoolVar(&o.setup, "setup", false, "Select microphone device interactively")
	fs.BoolVar(&o.doctor, "doctor", false, "Run system diagnostics and exit (optionally on a WAV file)")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		if !o.doctor {
			return o, fmt.Errorf("unexpected argument %q", fs.Arg(0))
		}
		o.doctorWAV = fs.Arg(0)
	}
	if o.setup && o.device != "" {
		return o, errors.New("-setup and -device are mutually exclusive")
	}
	return o, nil
}

// session owns the handles that live for the whole process: one capture
// device, the listener on top of it, and the loaded model.
type session struct {
	cfg      config.Config
	audioCtx audio.Context
	capture  audio.CaptureDevice
	listener *audio.Listener
	model    transcriber.Model
}

// openSession connects to audio, resolves the capture device and loads the
// model. With pick set the device comes from pick instead of cfg.Audio.Device.
func openSession(cfg config.Config, newContext func() (audio.Context, error), pick func(audio.Context) (*audio.DeviceInfo, error)) (*session, error) {
	actx, err := newContext()
	if err != nil {
		return nil, fmt.Errorf("audio init: %w", err)
	}
	s := &session{cfg: cfg, audioCtx: actx}

	var dev *audio.DeviceInfo
	switch {
	case pick != nil:
		dev, err = pick(actx)
		if errors.Is(err, audio.ErrSelectionAborted) {
			s.Close()
			return nil, err
		}
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: device selection failed: %v\nFalling back to default device\n", err)
			dev = nil
		}
	case cfg.Audio.Device != "":
		dev, err = audio.FindDevice(actx, cfg.Audio.Device)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("list devices: %w", err)
		}
		if dev == nil {
			s.Close()
			return nil, fmt.Errorf("microphone %q not found", cfg.Audio.Device)
		}
	}

	s.capture, err = actx.NewCapture(dev, audio.DefaultCaptureConfig())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("capture device init: %w", err)
	}
	s.listener = audio.NewListener(s.capture, cfg.Listen())

	s.model, err = transcriber.New(cfg.Transcriber())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("load model: %w", err)
	}
	if dev != nil && audio.IsBluetooth(dev.Name) {
		log.Warnf("bluetooth microphone %q: expect narrowband audio", dev.Name)
	}
	return s, nil
}

func (s *session) newWorker() shell.Runner {
	return worker.New(s.listener, s.model, worker.Config{
		Calibration: s.cfg.Calibration(),
		TempDir:     s.cfg.Worker.TempDir,
		ErrorPause:  s.cfg.ErrorPause(),
		OnReady:     beep.PlayStart,
	})
}

func (s *session) newShell(view shell.View) *shell.Shell {
	return shell.New(view, s.newWorker,
		shell.WithStopTimeout(s.cfg.StopTimeout()),
		shell.WithOnStop(beep.PlayEnd),
	)
}

// Close releases everything openSession acquired. Workers must be stopped first.
func (s *session) Close() {
	if s.listener != nil {
		if n := s.listener.Dropped(); n > 0 {
			log.Warnf("dropped %d audio chunks", n)
		}
		s.listener.Close()
	}
	if s.capture != nil {
		s.capture.Close()
	}
	if s.model != nil {
		if err := s.model.Close(); err != nil {
			log.Warnf("model close: %v", err)
		}
	}
	if s.audioCtx != nil {
		s.audioCtx.Close()
	}
}

func fatal(format string, args ...any) int {
	msg := fmt.Sprintf(format, args...)
	log.Error(msg)
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	return 1
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

func run(args []string) int {
	opts, err := parseFlags(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if opts.version {
		fmt.Printf("scribe %s\n", version)
		return 0
	}

	cfg, err := config.Load(config.ResolvePath(opts.configPath))
	if err != nil {
		return fatal("%v", err)
	}
	if opts.device != "" {
		cfg.Audio.Device = opts.device
	}

	logPath, err := log.ResolveDir(opts.logPath)
	if err != nil {
		return fatal("failed to resolve log directory: %v", err)
	}
	log.SetDir(logPath)
	if err := log.SetLevel(cfg.Log.Level); err != nil {
		return fatal("%v", err)
	}
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	} else {
		defer log.Close()
		initCrashLog()
	}
	log.Infof("scribe %s starting, backend=%s", version, cfg.Model.Backend)

	if opts.doctor {
		return doctor.Run(context.Background(), doctor.Options{
			NewContext:  audio.NewContext,
			Device:      cfg.Audio.Device,
			Listen:      cfg.Listen(),
			Calibration: cfg.Calibration(),
			Model:       cfg.Transcriber(),
			WAV:         opts.doctorWAV,
		})
	}

	if !cfg.Audio.Cues {
		beep.Disable()
	}

	var pick func(audio.Context) (*audio.DeviceInfo, error)
	if opts.setup {
		pick = audio.SelectDevice
	}
	s, err := openSession(cfg, audio.NewContext, pick)
	if errors.Is(err, audio.ErrSelectionAborted) {
		return 0
	}
	if err != nil {
		return fatal("%v", err)
	}
	defer s.Close()

	if opts.tui || !guiAvailable {
		return runTUI(s)
	}
	return runGUI(s)
}

func main() {
	os.Exit(run(os.Args[1:]))
}
