// Package config handles thane-voice configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order used when no
// explicit path is given: ./config.yaml, ~/.config/thane-voice/config.yaml,
// /etc/thane-voice/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "thane-voice", "config.yaml"))
	}

	paths = append(paths, "/etc/thane-voice/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all thane-voice configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"` // text (default) or json
	DataDir   string          `yaml:"data_dir"`
	Assistant AssistantConfig `yaml:"assistant"`
	Plugins   PluginsConfig   `yaml:"plugins"`
	Providers ProvidersConfig `yaml:"providers"`
	Speech    SpeechConfig    `yaml:"speech"`
	Audio     AudioConfig     `yaml:"audio"`
	WakeWord  WakeWordConfig  `yaml:"wakeword"`
	Executor  ExecutorConfig  `yaml:"executor"`
	IPC       IPCConfig       `yaml:"ipc"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

// AssistantConfig shapes the conversational behavior of the dialogue
// pipeline.
type AssistantConfig struct {
	Name string `yaml:"name"`
	// PersonaFile points to a markdown file whose contents open every
	// system prompt. Persona is used when the file is unset.
	PersonaFile string `yaml:"persona_file"`
	Persona     string `yaml:"persona"`
	User        string `yaml:"user"`

	// MaxHistory bounds the conversation; oldest turns are evicted first.
	MaxHistory int `yaml:"max_history"`

	// CorrectTranscripts enables the transcription-fix prompt before
	// language detection.
	CorrectTranscripts bool   `yaml:"correct_transcripts"`
	CorrectionModel    string `yaml:"correction_model"`

	// FallbackLanguage is used for very short inputs and for
	// low-confidence detections that show the language's markers.
	FallbackLanguage   string  `yaml:"fallback_language"`
	LanguageConfidence float64 `yaml:"language_confidence"`

	// MemoryTriggers are phrases that route to "memory get" when the
	// model chose no command.
	MemoryTriggers []string `yaml:"memory_triggers"`

	// ForegroundCommand prints a description of what the user is
	// looking at (e.g. the focused window title), offered to the model
	// as context. Empty disables the hint.
	ForegroundCommand []string `yaml:"foreground_command"`
}

// PluginsConfig locates capability plugins and their enable state.
type PluginsConfig struct {
	Dir          string        `yaml:"dir"`
	StateFile    string        `yaml:"state_file"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ProvidersConfig lists the language-model backends. Providers are
// registered in the order ollama, anthropic, gemini; Preferred is tried
// first and the rest serve as fallbacks.
type ProvidersConfig struct {
	Preferred string          `yaml:"preferred"`
	Timeout   time.Duration   `yaml:"timeout"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini"`
}

// OllamaConfig defines the local Ollama backend.
type OllamaConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// Configured reports whether Ollama has enough settings to be used.
func (c OllamaConfig) Configured() bool {
	return c.URL != "" && c.Model != ""
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// Configured reports whether an API key is present.
func (c AnthropicConfig) Configured() bool {
	return c.APIKey != ""
}

// GeminiConfig defines Google Gemini API settings.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// Configured reports whether an API key is present.
func (c GeminiConfig) Configured() bool {
	return c.APIKey != ""
}

// SpeechConfig configures the speech-to-text and speech output
// collaborators.
type SpeechConfig struct {
	STT STTConfig `yaml:"stt"`
	TTS TTSConfig `yaml:"tts"`
}

// STTConfig points at an OpenAI-compatible transcription endpoint
// (whisper.cpp server, faster-whisper-server, etc).
type STTConfig struct {
	URL      string        `yaml:"url"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Language string        `yaml:"language"`
	Timeout  time.Duration `yaml:"timeout"`
}

// TTSConfig selects the speech output. With an empty Command, replies
// are printed to the console instead of spoken.
type TTSConfig struct {
	// Command is run per utterance with the text on stdin, e.g.
	// ["piper", "--model", "en_US-amy.onnx", "--output-raw"].
	Command []string `yaml:"command"`
}

// AudioConfig describes the microphone stream and capture limits.
type AudioConfig struct {
	// Command emits raw little-endian 16-bit mono PCM on stdout.
	Command    []string      `yaml:"command"`
	SampleRate int           `yaml:"sample_rate"`
	FrameSize  time.Duration `yaml:"frame_size"`
	QueueSize  int           `yaml:"queue_size"`

	// SilenceThreshold is the RMS level below which a frame counts as
	// silence; Silence is how much trailing silence ends a capture.
	SilenceThreshold float64       `yaml:"silence_threshold"`
	Silence          time.Duration `yaml:"silence"`
	MaxCapture       time.Duration `yaml:"max_capture"`
}

// WakeWordConfig selects and tunes the wake-word detector.
type WakeWordConfig struct {
	// Mode is "remote" (websocket wake-word server) or "transcript"
	// (energy-gated windows matched against Phrase via STT).
	Mode       string        `yaml:"mode"`
	Phrase     string        `yaml:"phrase"`
	URL        string        `yaml:"url"`
	Threshold  float64       `yaml:"threshold"`
	Window     time.Duration `yaml:"window"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryPause time.Duration `yaml:"retry_pause"`
}

// ExecutorConfig bounds capability handler execution.
type ExecutorConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// IPCConfig locates the local command socket.
type IPCConfig struct {
	Socket    string `yaml:"socket"`
	QueueSize int    `yaml:"queue_size"`
}

// MQTTConfig defines the optional MQTT command bridge and state
// publisher.
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // e.g. mqtt://homeassistant.local:1883
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	DeviceName  string `yaml:"device_name"`
}

// Configured reports whether a broker URL is present.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// Load reads configuration from a YAML file, expanding environment
// variables and filling defaults for unset fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Assistant.Name == "" {
		c.Assistant.Name = "Thane"
	}
	if c.Assistant.MaxHistory <= 0 {
		c.Assistant.MaxHistory = 20
	}
	if c.Assistant.FallbackLanguage == "" {
		c.Assistant.FallbackLanguage = "pl"
	}
	if c.Assistant.LanguageConfidence <= 0 {
		c.Assistant.LanguageConfidence = 0.5
	}
	if c.Assistant.MemoryTriggers == nil {
		c.Assistant.MemoryTriggers = []string{
			"what do you remember",
			"do you remember",
			"co pamiętasz",
			"czy pamiętasz",
		}
	}
	if c.Assistant.User == "" {
		c.Assistant.User = "default"
	}
	if c.Plugins.Dir == "" {
		c.Plugins.Dir = "./plugins"
	}
	if c.Plugins.StateFile == "" {
		c.Plugins.StateFile = filepath.Join(c.DataDir, "plugins.json")
	}
	if c.Plugins.PollInterval <= 0 {
		c.Plugins.PollInterval = 5 * time.Second
	}
	if c.Providers.Timeout <= 0 {
		c.Providers.Timeout = 30 * time.Second
	}
	if c.Providers.Ollama.URL == "" {
		c.Providers.Ollama.URL = "http://localhost:11434"
	}
	if c.Providers.Anthropic.Model == "" {
		c.Providers.Anthropic.Model = "claude-sonnet-4-20250514"
	}
	if c.Providers.Gemini.Model == "" {
		c.Providers.Gemini.Model = "gemini-2.5-flash"
	}
	if c.Speech.STT.Model == "" {
		c.Speech.STT.Model = "whisper-1"
	}
	if c.Speech.STT.Timeout <= 0 {
		c.Speech.STT.Timeout = 30 * time.Second
	}
	if len(c.Audio.Command) == 0 {
		c.Audio.Command = []string{"arecord", "-q", "-f", "S16_LE", "-c", "1", "-r", "16000", "-t", "raw"}
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.FrameSize <= 0 {
		c.Audio.FrameSize = 80 * time.Millisecond
	}
	if c.Audio.QueueSize <= 0 {
		c.Audio.QueueSize = 256
	}
	if c.Audio.SilenceThreshold <= 0 {
		c.Audio.SilenceThreshold = 500
	}
	if c.Audio.Silence <= 0 {
		c.Audio.Silence = 1200 * time.Millisecond
	}
	if c.Audio.MaxCapture <= 0 {
		c.Audio.MaxCapture = 15 * time.Second
	}
	if c.WakeWord.Mode == "" {
		c.WakeWord.Mode = "transcript"
	}
	if c.WakeWord.Phrase == "" {
		c.WakeWord.Phrase = "hey " + c.Assistant.Name
	}
	if c.WakeWord.Threshold <= 0 {
		c.WakeWord.Threshold = 0.5
	}
	if c.WakeWord.Window <= 0 {
		c.WakeWord.Window = 2 * time.Second
	}
	if c.WakeWord.Timeout <= 0 {
		c.WakeWord.Timeout = 30 * time.Second
	}
	if c.WakeWord.RetryPause <= 0 {
		c.WakeWord.RetryPause = time.Second
	}
	if c.Executor.Timeout <= 0 {
		c.Executor.Timeout = 60 * time.Second
	}
	if c.IPC.Socket == "" {
		c.IPC.Socket = filepath.Join(c.DataDir, "thane-voice.sock")
	}
	if c.IPC.QueueSize <= 0 {
		c.IPC.QueueSize = 32
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "thane-voice"
	}
	if c.MQTT.DeviceName == "" {
		c.MQTT.DeviceName = "thane-voice"
	}
}

// Validate checks cross-field constraints that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q (valid: text, json)", c.LogFormat))
	}
	if _, err := language.Parse(c.Assistant.FallbackLanguage); err != nil {
		errs = append(errs, fmt.Errorf("assistant.fallback_language %q: %w", c.Assistant.FallbackLanguage, err))
	}
	if c.Assistant.LanguageConfidence > 1 {
		errs = append(errs, fmt.Errorf("assistant.language_confidence %.2f must be within (0, 1]", c.Assistant.LanguageConfidence))
	}
	switch c.Providers.Preferred {
	case "", "ollama", "anthropic", "gemini":
	default:
		errs = append(errs, fmt.Errorf("providers.preferred %q (valid: ollama, anthropic, gemini)", c.Providers.Preferred))
	}
	switch c.WakeWord.Mode {
	case "transcript":
	case "remote":
		if c.WakeWord.URL == "" {
			errs = append(errs, errors.New("wakeword.url is required for remote mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("wakeword.mode %q (valid: transcript, remote)", c.WakeWord.Mode))
	}

	return errors.Join(errs...)
}

// ProviderNames returns the configured provider names in registration
// order.
func (c *Config) ProviderNames() []string {
	var names []string
	if c.Providers.Ollama.Configured() {
		names = append(names, "ollama")
	}
	if c.Providers.Anthropic.Configured() {
		names = append(names, "anthropic")
	}
	if c.Providers.Gemini.Configured() {
		names = append(names, "gemini")
	}
	return names
}
