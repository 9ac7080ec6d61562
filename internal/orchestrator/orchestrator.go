// Package orchestrator assembles the assistant from configuration and
// runs it: the serial scheduler, the capability registry and its
// watcher, the listener, and the command channels that feed it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nugget/thane-voice/internal/audio"
	"github.com/nugget/thane-voice/internal/capability"
	"github.com/nugget/thane-voice/internal/config"
	"github.com/nugget/thane-voice/internal/dialogue"
	"github.com/nugget/thane-voice/internal/events"
	"github.com/nugget/thane-voice/internal/executor"
	"github.com/nugget/thane-voice/internal/ipc"
	"github.com/nugget/thane-voice/internal/listener"
	"github.com/nugget/thane-voice/internal/llm"
	"github.com/nugget/thane-voice/internal/memory"
	"github.com/nugget/thane-voice/internal/mqtt"
	"github.com/nugget/thane-voice/internal/prompts"
	"github.com/nugget/thane-voice/internal/recovery"
	"github.com/nugget/thane-voice/internal/scheduler"
	"github.com/nugget/thane-voice/internal/speech"
	"github.com/nugget/thane-voice/internal/wakeword"
)

const stopTimeout = 5 * time.Second

// ErrRestartRequested is returned by [Assistant.Run] when a
// config_updated command asks for a restart with fresh configuration.
var ErrRestartRequested = errors.New("restart requested")

// Options adjust how New assembles the assistant.
type Options struct {
	// Listen enables the microphone and wake-word detection. Without
	// it the assistant only answers Ask and manual commands are logged.
	Listen bool
	// Console receives replies when no speech command is configured.
	Console io.Writer
	// Providers replaces the configured language-model backends.
	Providers []llm.Provider
	// Synthesizer replaces the configured speech output.
	Synthesizer speech.Synthesizer
}

// Assistant is one fully wired instance. It is built for a single Run;
// a restart builds a new one.
type Assistant struct {
	cfg    *config.Config
	logger *slog.Logger

	bus      *events.Bus
	loop     *scheduler.Loop
	registry *capability.Registry
	gateway  *llm.Gateway
	speaker  *speech.Output
	pipeline *dialogue.Pipeline
	queue    *ipc.Queue
	listener *listener.Listener
	notes    *memory.Store
	bridge   *mqtt.Bridge
}

// New builds the assistant. Nothing runs until Run or Ask.
func New(ctx context.Context, cfg *config.Config, opts Options, logger *slog.Logger) (*Assistant, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}
	a := &Assistant{
		cfg:    cfg,
		logger: logger,
		bus:    events.New(),
		loop:   scheduler.New(0, logger),
		queue:  ipc.NewQueue(cfg.IPC.QueueSize),
	}

	persona, err := LoadPersona(cfg.Assistant)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	a.notes, err = memory.NewStore(filepath.Join(cfg.DataDir, "memory.db"))
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}

	a.registry = capability.NewRegistry(capability.Config{
		Dir:         cfg.Plugins.Dir,
		StateFile:   cfg.Plugins.StateFile,
		LoadTimeout: cfg.Executor.Timeout,
	}, logger)
	a.registry.AddBuiltin(memory.Command, memory.Capability(a.notes, logger))
	a.registry.OnReload(func(g *capability.Generation) {
		a.bus.Emit(events.SourceRegistry, events.KindReload, map[string]any{
			"generation":   g.Number,
			"capabilities": g.Len(),
			"skipped":      len(g.Skipped()),
		})
	})

	providers := opts.Providers
	if providers == nil {
		if providers, err = buildProviders(ctx, cfg, logger); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.gateway = llm.NewGateway(providers, llm.GatewayConfig{
		Preferred: cfg.Providers.Preferred,
		Timeout:   cfg.Providers.Timeout,
	}, a.bus, logger)

	synth := opts.Synthesizer
	if synth == nil {
		synth = newSynthesizer(cfg, opts.Console)
	}
	a.speaker = speech.NewOutput(synth, logger)

	var hinter dialogue.ContextHinter
	if len(cfg.Assistant.ForegroundCommand) > 0 {
		hinter = commandHinter{args: cfg.Assistant.ForegroundCommand, logger: logger}
	}

	a.pipeline = dialogue.New(dialogue.Config{
		Persona:            persona,
		User:               cfg.Assistant.User,
		MaxHistory:         cfg.Assistant.MaxHistory,
		Correct:            cfg.Assistant.CorrectTranscripts,
		CorrectionModel:    cfg.Assistant.CorrectionModel,
		FallbackLanguage:   cfg.Assistant.FallbackLanguage,
		LanguageConfidence: cfg.Assistant.LanguageConfidence,
		MemoryTriggers:     cfg.Assistant.MemoryTriggers,
	}, dialogue.Deps{
		Gateway:  a.gateway,
		Registry: a.registry,
		Executor: executor.New(a.registry, cfg.Executor.Timeout, a.bus, logger),
		Recovery: recovery.New(a.gateway, a.speaker, persona, a.bus, logger),
		Speaker:  a.speaker,
		Hinter:   hinter,
		Bus:      a.bus,
	}, logger)

	if opts.Listen {
		if err := a.buildListener(); err != nil {
			a.Close()
			return nil, err
		}
	}

	if cfg.MQTT.Configured() {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load mqtt instance id: %w", err)
		}
		a.bridge = mqtt.New(cfg.MQTT, mqtt.ClientID(cfg.MQTT.DeviceName, instanceID), a.queue, a.bus, logger)
	}

	return a, nil
}

func newSynthesizer(cfg *config.Config, console io.Writer) speech.Synthesizer {
	if len(cfg.Speech.TTS.Command) > 0 {
		return speech.CommandSynthesizer{Args: cfg.Speech.TTS.Command}
	}
	return speech.NewConsoleSynthesizer(console, cfg.Assistant.Name)
}

func (a *Assistant) buildListener() error {
	cfg := a.cfg
	if cfg.Speech.STT.URL == "" {
		return errors.New("listening needs speech.stt.url")
	}
	stt := speech.NewSTTClient(speech.STTConfig{
		URL:        cfg.Speech.STT.URL,
		APIKey:     cfg.Speech.STT.APIKey,
		Model:      cfg.Speech.STT.Model,
		Language:   cfg.Speech.STT.Language,
		SampleRate: cfg.Audio.SampleRate,
		Timeout:    cfg.Speech.STT.Timeout,
	}, a.logger)

	var detector wakeword.Detector
	switch cfg.WakeWord.Mode {
	case "remote":
		detector = &wakeword.Remote{
			URL:        cfg.WakeWord.URL,
			Phrase:     cfg.WakeWord.Phrase,
			Threshold:  cfg.WakeWord.Threshold,
			SampleRate: cfg.Audio.SampleRate,
			Timeout:    cfg.WakeWord.Timeout,
			Logger:     a.logger.With("component", "wakeword"),
		}
	default:
		detector = &wakeword.Transcript{
			Phrase:     cfg.WakeWord.Phrase,
			MinDensity: cfg.WakeWord.Threshold,
			Energy:     cfg.Audio.SilenceThreshold,
			Window:     cfg.WakeWord.Window,
			SampleRate: cfg.Audio.SampleRate,
			Timeout:    cfg.WakeWord.Timeout,
			STT:        stt,
			Logger:     a.logger.With("component", "wakeword"),
		}
	}

	a.listener = listener.New(listener.Config{
		SampleRate:       cfg.Audio.SampleRate,
		SilenceThreshold: cfg.Audio.SilenceThreshold,
		Silence:          cfg.Audio.Silence,
		MaxCapture:       cfg.Audio.MaxCapture,
		RetryPause:       cfg.WakeWord.RetryPause,
	}, listener.Deps{
		Source: audio.CommandSource{
			Args:       cfg.Audio.Command,
			SampleRate: cfg.Audio.SampleRate,
			FrameSize:  cfg.Audio.FrameSize,
		},
		Queue:    audio.NewQueue(cfg.Audio.QueueSize),
		Detector: detector,
		STT:      stt,
		Handle:   a.handleUtterance,
		Missed:   a.notHeard,
		Bus:      a.bus,
	}, a.logger)
	return nil
}

// loadCapabilities publishes the first generation. A plugin directory
// that cannot be read leaves the builtins in place.
func (a *Assistant) loadCapabilities(ctx context.Context) {
	if _, err := a.registry.Reload(ctx); err != nil {
		a.logger.Warn("plugin directory unavailable, continuing with builtins",
			"dir", a.cfg.Plugins.Dir, "error", err)
	}
}

// Run serves until ctx ends or a restart is requested. It returns nil
// on cancellation and [ErrRestartRequested] on config_updated.
func (a *Assistant) Run(ctx context.Context) error {
	a.loadCapabilities(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.loop.Run(gctx) })
	g.Go(func() error { return a.registry.Watch(gctx, a.cfg.Plugins.PollInterval) })

	if a.cfg.IPC.Socket != "" {
		srv := ipc.NewServer(a.cfg.IPC.Socket, a.queue, a.bus, a.logger)
		g.Go(func() error { return srv.Serve(gctx) })
	}
	if a.bridge != nil {
		g.Go(func() error {
			err := a.bridge.Start(gctx)
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
			defer cancel()
			if serr := a.bridge.Stop(stopCtx); serr != nil {
				a.logger.Warn("mqtt shutdown failed", "error", serr)
			}
			if err != nil {
				// The bridge is optional; its failure must not stop the
				// assistant.
				a.logger.Error("mqtt bridge failed", "error", err)
			}
			return nil
		})
	}
	if a.listener != nil {
		g.Go(func() error { return a.listener.Run(gctx) })
	}
	g.Go(func() error { return a.consume(gctx) })

	a.logger.Info("assistant running",
		"providers", a.gateway.Providers(),
		"listening", a.listener != nil,
		"socket", a.cfg.IPC.Socket,
		"mqtt", a.bridge != nil,
	)

	err := g.Wait()
	a.speaker.Cancel()
	if errors.Is(err, ErrRestartRequested) {
		return err
	}
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// consume is the single consumer of the command queue.
func (a *Assistant) consume(ctx context.Context) error {
	for {
		cmd, err := a.queue.Next(ctx)
		if err != nil {
			return nil
		}
		if err := a.dispatch(cmd); err != nil {
			a.discardPending()
			return err
		}
	}
}

// discardPending empties the queue before a restart. The next
// assistant starts with a fresh queue.
func (a *Assistant) discardPending() {
	for {
		cmd, ok := a.queue.Poll()
		if !ok {
			return
		}
		a.logger.Warn("command discarded on restart", "action", cmd.Action, "origin", cmd.Origin, "id", cmd.ID)
	}
}

// dispatch acts on one command. Only a restart request is returned as
// an error.
func (a *Assistant) dispatch(cmd ipc.Command) error {
	a.logger.Info("command received", "action", cmd.Action, "origin", cmd.Origin, "id", cmd.ID)
	switch cmd.Action {
	case ipc.ActionActivate:
		if a.listener == nil {
			a.logger.Warn("activate ignored: not listening")
			return nil
		}
		a.listener.Trigger()
	case ipc.ActionConfigUpdated:
		return ErrRestartRequested
	}
	return nil
}

// handleUtterance runs one transcript through the pipeline on the
// scheduler and waits for it.
func (a *Assistant) handleUtterance(ctx context.Context, text string) {
	err := a.loop.Do(ctx, func(ctx context.Context) {
		a.pipeline.Handle(ctx, dialogue.Input{Text: text})
	})
	if err != nil && ctx.Err() == nil {
		a.logger.Error("utterance not handled", "error", err)
	}
}

// notHeard apologises for speech that produced no transcript.
func (a *Assistant) notHeard(ctx context.Context) {
	lang := a.cfg.Speech.STT.Language
	if lang == "" {
		lang = a.cfg.Assistant.FallbackLanguage
	}
	err := a.loop.Do(ctx, func(ctx context.Context) {
		if err := a.speaker.Speak(ctx, prompts.Text(prompts.MsgNotHeard, lang)); err != nil && ctx.Err() == nil {
			a.logger.Warn("not-heard prompt failed", "error", err)
		}
	})
	if err != nil && ctx.Err() == nil {
		a.logger.Error("not-heard prompt not scheduled", "error", err)
	}
}

// Ask answers one request outside of Run, for the CLI.
func (a *Assistant) Ask(ctx context.Context, text string) (dialogue.Outcome, error) {
	a.loadCapabilities(ctx)
	a.loop.Start()
	defer a.loop.Stop()

	var out dialogue.Outcome
	err := a.loop.Do(ctx, func(ctx context.Context) {
		out = a.pipeline.Handle(ctx, dialogue.Input{Text: text})
	})
	return out, err
}

// Close releases the stores.
func (a *Assistant) Close() error {
	if a.notes == nil {
		return nil
	}
	return a.notes.Close()
}
