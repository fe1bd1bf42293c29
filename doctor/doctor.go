// Package doctor runs the checks behind the -doctor flag: audio devices,
// ambient noise, model loading and one end-to-end transcription.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"scribe/audio"
	"scribe/clipboard"
	"scribe/transcriber"
)

const loudRoomThreshold = 3000

type Options struct {
	Out         io.Writer
	NewContext  func() (audio.Context, error)
	Device      string
	Listen      audio.ListenConfig
	Calibration time.Duration
	Model       transcriber.Config
	// WAV, when set, is transcribed instead of a live recording.
	WAV           string
	RecordTimeout time.Duration
}

type checker struct {
	opts Options
	out  io.Writer
}

func (c *checker) header(step, total int, title string) {
	fmt.Fprintf(c.out, "\n[%d/%d] %s\n", step, total, title)
}

func (c *checker) pass(format string, args ...any) {
	fmt.Fprintf(c.out, "  PASS: "+format+"\n", args...)
}

func (c *checker) fail(format string, args ...any) bool {
	fmt.Fprintf(c.out, "  FAIL: "+format+"\n", args...)
	return false
}

func (c *checker) warn(format string, args ...any) {
	fmt.Fprintf(c.out, "  WARN: "+format+"\n", args...)
}

// Run executes the checks in order, stopping at the first failure, and
// returns an exit code (0 = all pass).
func Run(ctx context.Context, opts Options) int {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.RecordTimeout <= 0 {
		opts.RecordTimeout = 10 * time.Second
	}
	c := &checker{opts: opts, out: opts.Out}

	fmt.Fprintln(c.out, "scribe doctor - system diagnostics")
	fmt.Fprintln(c.out, "==================================")

	const total = 4
	ok := true

	var listener *audio.Listener
	if opts.WAV == "" {
		c.header(1, total, "Audio devices")
		var cleanup func()
		listener, cleanup, ok = c.checkDevices()
		if cleanup != nil {
			defer cleanup()
		}

		if ok {
			c.header(2, total, "Ambient noise")
			ok = c.checkAmbient(ctx, listener)
		}
	} else {
		c.header(1, total, "Audio devices")
		fmt.Fprintf(c.out, "  SKIP: using %s\n", opts.WAV)
		c.header(2, total, "Ambient noise")
		fmt.Fprintln(c.out, "  SKIP: using a recorded file")
	}

	var model transcriber.Model
	if ok {
		c.header(3, total, "Model")
		model, ok = c.checkModel()
		if model != nil {
			defer model.Close()
		}
	}
	if ok {
		c.header(4, total, "Transcription")
		ok = c.checkTranscription(ctx, listener, model)
	}

	c.reportClipboard()

	fmt.Fprintln(c.out)
	if ok {
		fmt.Fprintln(c.out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(c.out, "Some checks failed. See details above.")
	return 1
}

func (c *checker) checkDevices() (*audio.Listener, func(), bool) {
	actx, err := c.opts.NewContext()
	if err != nil {
		return nil, nil, c.fail("cannot connect to audio: %v", err)
	}
	cleanup := func() { actx.Close() }

	devices, err := actx.Devices()
	if err != nil {
		return nil, cleanup, c.fail("cannot list devices: %v", err)
	}
	if len(devices) == 0 {
		return nil, cleanup, c.fail("no capture devices found")
	}
	for _, d := range devices {
		tag := ""
		if audio.IsBluetooth(d.Name) {
			tag = " (bluetooth, narrowband while recording)"
		}
		fmt.Fprintf(c.out, "  - %s%s\n", d.Name, tag)
	}

	var dev *audio.DeviceInfo
	if c.opts.Device != "" {
		dev, err = audio.FindDevice(actx, c.opts.Device)
		if err != nil || dev == nil {
			return nil, cleanup, c.fail("device %q not found", c.opts.Device)
		}
	}
	capture, err := actx.NewCapture(dev, audio.DefaultCaptureConfig())
	if err != nil {
		return nil, cleanup, c.fail("cannot open capture device: %v", err)
	}
	listener := audio.NewListener(capture, c.opts.Listen)
	c.pass("capturing from %s", capture.DeviceName())

	return listener, func() {
		listener.Close()
		capture.Close()
		actx.Close()
	}, true
}

func (c *checker) checkAmbient(ctx context.Context, l *audio.Listener) bool {
	fmt.Fprintln(c.out, "  Stay quiet for a moment...")
	if err := l.Calibrate(ctx, c.opts.Calibration); err != nil {
		return c.fail("calibration: %v", err)
	}
	threshold := l.EnergyThreshold()
	if threshold > loudRoomThreshold {
		c.warn("noisy input (energy threshold %.0f); speech may be cut or missed", threshold)
	}
	c.pass("energy threshold %.0f", threshold)
	return true
}

func (c *checker) checkModel() (transcriber.Model, bool) {
	start := time.Now()
	m, err := transcriber.New(c.opts.Model)
	if err != nil {
		return nil, c.fail("%v", err)
	}
	c.pass("%s backend ready in %dms", m.Name(), time.Since(start).Milliseconds())
	return m, true
}

func (c *checker) checkTranscription(ctx context.Context, l *audio.Listener, m transcriber.Model) bool {
	path := c.opts.WAV
	if path == "" {
		dir, err := os.MkdirTemp("", "scribe-doctor-")
		if err != nil {
			return c.fail("temp dir: %v", err)
		}
		defer os.RemoveAll(dir)

		fmt.Fprintln(c.out, "  Say a short sentence...")
		lctx, cancel := context.WithTimeout(ctx, c.opts.RecordTimeout)
		utt, err := l.Listen(lctx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return c.fail("no speech heard within %s", c.opts.RecordTimeout)
			}
			return c.fail("recording: %v", err)
		}
		fmt.Fprintf(c.out, "  Recorded %.1fs\n", utt.Duration().Seconds())
		path = filepath.Join(dir, "speech.wav")
		if err := audio.WriteWAV(path, utt); err != nil {
			return c.fail("%v", err)
		}
	}

	start := time.Now()
	text, err := m.Transcribe(ctx, path)
	switch {
	case errors.Is(err, transcriber.ErrUnintelligible):
		return c.fail("model returned no text")
	case errors.Is(err, transcriber.ErrUnavailable):
		return c.fail("backend unavailable: %v", err)
	case err != nil:
		return c.fail("%v", err)
	}
	c.pass("%q in %dms", text, time.Since(start).Milliseconds())
	return true
}

func (c *checker) reportClipboard() {
	if clipboard.Available() {
		fmt.Fprintln(c.out, "\n  clipboard: available")
	} else {
		fmt.Fprintf(c.out, "\n  clipboard: %v\n", clipboard.ErrUnsupported)
	}
}
