// Package dialogue turns a recognized utterance into a spoken answer.
// The [Pipeline] owns the conversation history, builds the system
// prompt, asks the provider gateway for a reply, and either runs the
// command the model picked or speaks its text.
package dialogue

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nugget/thane-voice/internal/capability"
	"github.com/nugget/thane-voice/internal/events"
	"github.com/nugget/thane-voice/internal/executor"
	"github.com/nugget/thane-voice/internal/llm"
	"github.com/nugget/thane-voice/internal/prompts"
	"github.com/nugget/thane-voice/internal/recovery"
	"github.com/nugget/thane-voice/internal/speech"
)

// MemoryCommand and MemoryRecall are the target of the memory-recall
// heuristic.
const (
	MemoryCommand = "memory"
	MemoryRecall  = "get"
)

// Chatter is the provider gateway.
type Chatter interface {
	Chat(ctx context.Context, req llm.Request) llm.Response
}

// Capabilities exposes the live registry generation.
type Capabilities interface {
	Current() *capability.Generation
}

// Runner executes a resolved command.
type Runner interface {
	Run(ctx context.Context, main, sub string, params any, c executor.Context) (string, bool)
}

// Recoverer answers a request again after its command reported an
// error, speaking and returning the answer.
type Recoverer interface {
	Retry(ctx context.Context, query, errText, lang string) string
}

// ContextHinter describes what the user is looking at, for requests
// like "what is this". An empty string means no hint.
type ContextHinter interface {
	Foreground(ctx context.Context) string
}

// Config shapes the pipeline.
type Config struct {
	Persona string
	User    string

	MaxHistory int

	Correct         bool
	CorrectionModel string

	FallbackLanguage   string
	LanguageConfidence float64

	MemoryTriggers []string
}

// Deps are the pipeline's collaborators. Recovery, Hinter, and Bus are
// optional.
type Deps struct {
	Gateway  Chatter
	Registry Capabilities
	Executor Runner
	Recovery Recoverer
	Speaker  speech.Speaker
	Hinter   ContextHinter
	Bus      *events.Bus
}

// Input is one user request.
type Input struct {
	Text   string
	User   string
	Images []llm.Image
}

// Outcome reports what a request did.
type Outcome struct {
	// Transcript is the text after optional correction.
	Transcript string
	Language   string

	Reply   prompts.Reply
	Command string
	Sub     string

	// OK is false when the command failed or nothing could answer.
	OK       bool
	Retried  bool
	Degraded bool

	Spoken string
}

// Pipeline handles utterances one at a time.
type Pipeline struct {
	cfg     Config
	deps    Deps
	history *History
	lang    LanguageDetector
	logger  *slog.Logger
}

// New creates a pipeline.
func New(cfg Config, deps Deps, logger *slog.Logger) *Pipeline {
	if cfg.Persona == "" {
		cfg.Persona = prompts.DefaultPersona("Thane")
	}
	if cfg.FallbackLanguage == "" {
		cfg.FallbackLanguage = "en"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:     cfg,
		deps:    deps,
		history: NewHistory(cfg.MaxHistory),
		lang: LanguageDetector{
			Fallback:      cfg.FallbackLanguage,
			MinConfidence: cfg.LanguageConfidence,
		},
		logger: logger.With("component", "pipeline"),
	}
}

// History returns the conversation. Callers must not use it
// concurrently with Handle.
func (p *Pipeline) History() *History { return p.history }

// Handle runs one request end to end and speaks the result.
func (p *Pipeline) Handle(ctx context.Context, in Input) Outcome {
	start := time.Now()
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Outcome{}
	}
	user := in.User
	if user == "" {
		user = p.cfg.User
	}

	corrected := false
	if p.cfg.Correct {
		if fixed := p.correct(ctx, text); fixed != text {
			p.logger.Debug("transcript corrected", "from", text, "to", fixed)
			text, corrected = fixed, true
		}
	}

	out := Outcome{Transcript: text, Language: p.lang.Detect(text)}
	p.deps.Bus.Emit(events.SourcePipeline, events.KindUtterance, map[string]any{
		"language":  out.Language,
		"corrected": corrected,
	})

	p.history.Append(Turn{Role: RoleUser, Content: text})

	gen := p.current()
	schemas := gen.Schemas()

	messages := append([]llm.Message{{
		Role:    RoleSystem,
		Content: p.systemPrompt(ctx, text, out.Language, schemas),
	}}, p.history.Messages()...)

	resp := p.deps.Gateway.Chat(ctx, llm.Request{
		Messages: messages,
		Tools:    capability.ToolDefinitions(schemas),
		Images:   in.Images,
	})

	if resp.Degraded {
		out.Degraded = true
		out.Spoken = prompts.Text(prompts.MsgDegraded, out.Language)
		p.finish(ctx, &out, "")
		return out
	}

	out.Reply = replyFrom(resp, gen)
	if out.Reply.Command == "" && p.wantsMemory(text) {
		p.logger.Debug("memory trigger matched")
		out.Reply.Command = MemoryCommand + " " + MemoryRecall
		out.Reply.Params = text
	}

	if out.Reply.Command == "" {
		out.OK = true
		out.Spoken = out.Reply.Text
		p.finish(ctx, &out, "")
		p.logger.Info("request answered", "language", out.Language, "provider", resp.Provider, "elapsed", time.Since(start))
		return out
	}

	out.Command, out.Sub = SplitCommand(out.Reply.Command)
	result, ok := p.deps.Executor.Run(ctx, out.Command, out.Sub, out.Reply.Params, executor.Context{
		History:  p.history.PluginTurns(),
		Language: out.Language,
		User:     user,
	})
	out.OK = ok

	switch {
	case !ok:
		out.Spoken = result
	case recovery.IsErrorShaped(result) && p.deps.Recovery != nil:
		p.logger.Info("command output reports an error, retrying without tools",
			"command", out.Command, "sub", out.Sub)
		out.Retried = true
		out.OK = false
		out.Spoken = p.deps.Recovery.Retry(ctx, text, result, out.Language)
		p.record(&out, out.Reply.Command)
		return out
	case strings.TrimSpace(result) != "":
		out.Spoken = result
	default:
		out.Spoken = out.Reply.Text
	}

	p.finish(ctx, &out, out.Reply.Command)
	p.logger.Info("request handled",
		"command", out.Command, "sub", out.Sub, "ok", out.OK,
		"language", out.Language, "elapsed", time.Since(start))
	return out
}

// finish speaks the outcome and records the assistant turn.
func (p *Pipeline) finish(ctx context.Context, out *Outcome, intent string) {
	p.say(ctx, out.Spoken)
	p.record(out, intent)
}

func (p *Pipeline) record(out *Outcome, intent string) {
	if out.Spoken == "" && intent == "" {
		return
	}
	p.history.Append(Turn{Role: RoleAssistant, Content: out.Spoken, Intent: intent})
}

func (p *Pipeline) say(ctx context.Context, text string) {
	if text == "" || p.deps.Speaker == nil {
		return
	}
	if err := p.deps.Speaker.Speak(ctx, text); err != nil {
		p.logger.Warn("speak failed", "error", err)
	}
}

func (p *Pipeline) current() *capability.Generation {
	if p.deps.Registry == nil {
		return nil
	}
	return p.deps.Registry.Current()
}

// systemPrompt assembles the instructions for one request.
func (p *Pipeline) systemPrompt(ctx context.Context, text, lang string, schemas []capability.FunctionSchema) string {
	parts := prompts.SystemParts{
		Persona:    p.cfg.Persona,
		Language:   lang,
		Suggestion: Suggest(text, schemas),
		Tools:      ToolList(schemas),
	}
	if p.deps.Hinter != nil {
		parts.Foreground = p.deps.Hinter.Foreground(ctx)
	}
	return prompts.SystemPrompt(parts)
}

// correct runs the transcription-fix prompt. The original text is kept
// when nothing answers or the answer's length strays too far from it.
func (p *Pipeline) correct(ctx context.Context, text string) string {
	resp := p.deps.Gateway.Chat(ctx, llm.Request{
		Model: p.cfg.CorrectionModel,
		Messages: []llm.Message{
			{Role: RoleSystem, Content: prompts.CorrectionPrompt()},
			{Role: RoleUser, Content: text},
		},
	})
	if resp.Degraded {
		return text
	}
	fixed := strings.Trim(strings.TrimSpace(resp.Content), `"`)
	if fixed == "" {
		return text
	}
	orig, got := utf8.RuneCountInString(text), utf8.RuneCountInString(fixed)
	if diff := got - orig; diff > orig/2 || -diff > orig/2 {
		p.logger.Debug("correction rejected", "from", text, "to", fixed)
		return text
	}
	return fixed
}

func (p *Pipeline) wantsMemory(text string) bool {
	lower := strings.ToLower(text)
	for _, trigger := range p.cfg.MemoryTriggers {
		if trigger != "" && strings.Contains(lower, strings.ToLower(trigger)) {
			return true
		}
	}
	return false
}

// SplitCommand splits "core timer" into ("core", "timer") on the first
// space.
func SplitCommand(command string) (main, sub string) {
	command = strings.TrimSpace(command)
	main, sub, _ = strings.Cut(command, " ")
	return main, strings.TrimSpace(sub)
}
