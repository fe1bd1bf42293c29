package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const EnvLogPath = "SCRIBE_LOG_PATH"

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcribeFile *os.File
	logMu          sync.Mutex
	logReady       atomic.Bool
	level          = zerolog.InfoLevel
	pid            int
	dir            string
)

func ResolveDir(flagPath string) (string, error) {
	if flagPath != "" {
		return absolute(flagPath)
	}
	if envPath := os.Getenv(EnvLogPath); envPath != "" {
		return absolute(envPath)
	}
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

// SetLevel accepts zerolog level names (debug, info, warn, error).
// It applies to loggers created by later Init calls and to the current one.
func SetLevel(name string) error {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	logMu.Lock()
	level = lvl
	if logReady.Load() {
		diagLog = diagLog.Level(lvl)
	}
	logMu.Unlock()
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcribePath := filepath.Join(dir, "transcribe_log.txt")
	transcribeFile, err = os.OpenFile(transcribePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).Level(level).With().Timestamp().Int("pid", pid).Logger()

	logReady.Store(true)
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	logReady.Store(false)
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
}

// event returns nil before Init; zerolog treats a nil *Event as disabled.
func event(lvl zerolog.Level) *zerolog.Event {
	if !logReady.Load() {
		return nil
	}
	return diagLog.WithLevel(lvl)
}

func Debug(msg string) { event(zerolog.DebugLevel).Msg(msg) }

func Debugf(format string, args ...any) { event(zerolog.DebugLevel).Msgf(format, args...) }

func Info(msg string) { event(zerolog.InfoLevel).Msg(msg) }

func Infof(format string, args ...any) { event(zerolog.InfoLevel).Msgf(format, args...) }

func Warn(msg string) { event(zerolog.WarnLevel).Msg(msg) }

func Warnf(format string, args ...any) { event(zerolog.WarnLevel).Msgf(format, args...) }

func Error(msg string) { event(zerolog.ErrorLevel).Msg(msg) }

func Errorf(format string, args ...any) { event(zerolog.ErrorLevel).Msgf(format, args...) }

func SessionStart(session, backend, device string) {
	event(zerolog.InfoLevel).
		Str("session", session).
		Str("backend", backend).
		Str("device", device).
		Msg("session_start")
}

func SessionEnd(session string, utterances int, elapsed time.Duration) {
	event(zerolog.InfoLevel).
		Str("session", session).
		Int("utterances", utterances).
		Float64("elapsed_s", elapsed.Seconds()).
		Msg("session_end")
}

func Utterance(session string, audio time.Duration, threshold float64) {
	event(zerolog.InfoLevel).
		Str("session", session).
		Float64("audio_s", audio.Seconds()).
		Float64("energy_threshold", threshold).
		Msg("utterance")
}

func Transcription(session, backend string, elapsed time.Duration, outcome string) {
	event(zerolog.InfoLevel).
		Str("session", session).
		Str("backend", backend).
		Float64("total_ms", float64(elapsed.Microseconds())/1000).
		Str("outcome", outcome).
		Msg("transcription")
}

func ServerRequest(url string, status int, dnsMs, connectMs, ttfbMs, totalMs float64, reused bool) {
	connStatus := "new"
	if reused {
		connStatus = "reused"
	}
	event(zerolog.DebugLevel).
		Str("url", url).
		Int("status", status).
		Str("conn", connStatus).
		Float64("dns_ms", dnsMs).
		Float64("connect_ms", connectMs).
		Float64("ttfb_ms", ttfbMs).
		Float64("total_ms", totalMs).
		Msg("server_request")
}

func TempCleanupFailed(path string, err error) {
	event(zerolog.DebugLevel).Str("path", path).Err(err).Msg("temp_cleanup_failed")
}

func WorkerJoinTimeout(session string, timeout time.Duration) {
	event(zerolog.WarnLevel).
		Str("session", session).
		Dur("timeout", timeout).
		Msg("worker_join_timeout")
}

func TranscriptionText(text string) {
	if !logReady.Load() {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if transcribeFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	transcribeFile.WriteString(line)
}
