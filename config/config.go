package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"scribe/audio"
	"scribe/transcriber"
)

const EnvConfigPath = "SCRIBE_CONFIG"

type ModelConfig struct {
	Backend   string `yaml:"backend"` // whisper, exec, server, fake
	Path      string `yaml:"path"`
	Language  string `yaml:"language"`
	Threads   int    `yaml:"threads"`
	Command   string `yaml:"command"`
	ServerURL string `yaml:"server_url"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type AudioConfig struct {
	Device          string  `yaml:"device"`
	SampleRate      int     `yaml:"sample_rate"`
	EnergyThreshold float64 `yaml:"energy_threshold"`
	DynamicEnergy   bool    `yaml:"dynamic_energy"`
	PauseMS         int     `yaml:"pause_ms"`
	PhraseMinMS     int     `yaml:"phrase_min_ms"`
	NonSpeakingMS   int     `yaml:"non_speaking_ms"`
	PhraseLimitMS   int     `yaml:"phrase_limit_ms"`
	CalibrationMS   int     `yaml:"calibration_ms"`
	VAD             string  `yaml:"vad"`
	Cues            bool    `yaml:"cues"`
}

type WorkerConfig struct {
	TempDir       string `yaml:"temp_dir"`
	StopTimeoutMS int    `yaml:"stop_timeout_ms"`
	ErrorPauseMS  int    `yaml:"error_pause_ms"`
}

type WindowConfig struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Dark   bool   `yaml:"dark"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	Model  ModelConfig  `yaml:"model"`
	Audio  AudioConfig  `yaml:"audio"`
	Worker WorkerConfig `yaml:"worker"`
	Window WindowConfig `yaml:"window"`
	Log    LogConfig    `yaml:"log"`
}

func Default() Config {
	return Config{
		Model: ModelConfig{
			Backend:   transcriber.BackendWhisper,
			Path:      filepath.Join("models", "ggml-base.bin"),
			ServerURL: "http://127.0.0.1:8080/inference",
			TimeoutMS: 60000,
		},
		Audio: AudioConfig{
			SampleRate:      audio.SampleRate,
			EnergyThreshold: 300,
			DynamicEnergy:   true,
			PauseMS:         800,
			PhraseMinMS:     300,
			NonSpeakingMS:   500,
			CalibrationMS:   1000,
			VAD:             audio.VADEnergy,
			Cues:            true,
		},
		Worker: WorkerConfig{
			StopTimeoutMS: 3000,
			ErrorPauseMS:  250,
		},
		Window: WindowConfig{
			Title:  "Real-Time Speech-to-Text",
			Width:  500,
			Height: 400,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ResolvePath picks the config file: flag, then SCRIBE_CONFIG, then
// config.yaml in the user config dir if it exists. Empty means defaults only.
func ResolvePath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if env := strings.TrimSpace(os.Getenv(EnvConfigPath)); env != "" {
		return env
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	p := filepath.Join(dir, "scribe", "config.yaml")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Model.Backend, "SCRIBE_MODEL_BACKEND")
	overrideString(&cfg.Model.Path, "SCRIBE_MODEL_PATH")
	overrideString(&cfg.Model.Language, "SCRIBE_MODEL_LANGUAGE")
	overrideInt(&cfg.Model.Threads, "SCRIBE_MODEL_THREADS")
	overrideString(&cfg.Model.Command, "SCRIBE_MODEL_COMMAND")
	overrideString(&cfg.Model.ServerURL, "SCRIBE_MODEL_SERVER_URL")
	overrideInt(&cfg.Model.TimeoutMS, "SCRIBE_MODEL_TIMEOUT_MS")
	overrideString(&cfg.Audio.Device, "SCRIBE_AUDIO_DEVICE")
	overrideFloat(&cfg.Audio.EnergyThreshold, "SCRIBE_AUDIO_ENERGY_THRESHOLD")
	overrideBool(&cfg.Audio.DynamicEnergy, "SCRIBE_AUDIO_DYNAMIC_ENERGY")
	overrideInt(&cfg.Audio.PauseMS, "SCRIBE_AUDIO_PAUSE_MS")
	overrideInt(&cfg.Audio.CalibrationMS, "SCRIBE_AUDIO_CALIBRATION_MS")
	overrideString(&cfg.Audio.VAD, "SCRIBE_AUDIO_VAD")
	overrideBool(&cfg.Audio.Cues, "SCRIBE_AUDIO_CUES")
	overrideString(&cfg.Worker.TempDir, "SCRIBE_WORKER_TEMP_DIR")
	overrideInt(&cfg.Worker.StopTimeoutMS, "SCRIBE_WORKER_STOP_TIMEOUT_MS")
	overrideString(&cfg.Log.Level, "SCRIBE_LOG_LEVEL")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	switch cfg.Model.Backend {
	case transcriber.BackendWhisper:
		if cfg.Model.Path == "" {
			return errors.New("model.path must not be empty for the whisper backend")
		}
	case transcriber.BackendExec:
		if strings.TrimSpace(cfg.Model.Command) == "" {
			return errors.New("model.command must not be empty for the exec backend")
		}
	case transcriber.BackendServer:
		if cfg.Model.ServerURL == "" {
			return errors.New("model.server_url must not be empty for the server backend")
		}
	case transcriber.BackendFake:
	default:
		return fmt.Errorf("model.backend %q is not one of whisper, exec, server, fake", cfg.Model.Backend)
	}
	if cfg.Model.Threads < 0 {
		return errors.New("model.threads must not be negative")
	}
	if cfg.Model.TimeoutMS < 0 {
		return errors.New("model.timeout_ms must not be negative")
	}
	if cfg.Audio.SampleRate != audio.SampleRate {
		return fmt.Errorf("audio.sample_rate must be %d", audio.SampleRate)
	}
	if cfg.Audio.EnergyThreshold <= 0 {
		return errors.New("audio.energy_threshold must be positive")
	}
	if cfg.Audio.PauseMS <= 0 {
		return errors.New("audio.pause_ms must be positive")
	}
	if cfg.Audio.PhraseMinMS < 0 || cfg.Audio.NonSpeakingMS < 0 || cfg.Audio.PhraseLimitMS < 0 || cfg.Audio.CalibrationMS < 0 {
		return errors.New("audio durations must not be negative")
	}
	if cfg.Audio.NonSpeakingMS > cfg.Audio.PauseMS {
		return errors.New("audio.non_speaking_ms must not exceed audio.pause_ms")
	}
	switch cfg.Audio.VAD {
	case audio.VADEnergy, audio.VADWebRTC:
	default:
		return fmt.Errorf("audio.vad %q is not one of %s, %s", cfg.Audio.VAD, audio.VADEnergy, audio.VADWebRTC)
	}
	if cfg.Worker.StopTimeoutMS <= 0 {
		return errors.New("worker.stop_timeout_ms must be positive")
	}
	if cfg.Worker.ErrorPauseMS < 0 {
		return errors.New("worker.error_pause_ms must not be negative")
	}
	if cfg.Window.Width <= 0 || cfg.Window.Height <= 0 {
		return errors.New("window.width and window.height must be positive")
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level)
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (c Config) Transcriber() transcriber.Config {
	return transcriber.Config{
		Backend:   c.Model.Backend,
		ModelPath: c.Model.Path,
		Language:  c.Model.Language,
		Threads:   c.Model.Threads,
		Command:   c.Model.Command,
		ServerURL: c.Model.ServerURL,
		Timeout:   ms(c.Model.TimeoutMS),
	}
}

func (c Config) Listen() audio.ListenConfig {
	return audio.ListenConfig{
		SampleRate:      c.Audio.SampleRate,
		EnergyThreshold: c.Audio.EnergyThreshold,
		DynamicEnergy:   c.Audio.DynamicEnergy,
		Pause:           ms(c.Audio.PauseMS),
		PhraseMin:       ms(c.Audio.PhraseMinMS),
		NonSpeaking:     ms(c.Audio.NonSpeakingMS),
		PhraseLimit:     ms(c.Audio.PhraseLimitMS),
		VAD:             c.Audio.VAD,
	}
}

func (c Config) Calibration() time.Duration { return ms(c.Audio.CalibrationMS) }

func (c Config) StopTimeout() time.Duration { return ms(c.Worker.StopTimeoutMS) }

func (c Config) ErrorPause() time.Duration { return ms(c.Worker.ErrorPauseMS) }
