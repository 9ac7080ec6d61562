// Package prompts contains all LLM prompt templates and user-facing
// phrases used by thane-voice.
//
// Prompt text is Go code rather than config files because it is program logic:
// templates use fmt.Sprintf interpolation, benefit from compile-time embedding,
// and can be validated by tests. User-facing configuration (persona, wake
// phrase, providers) lives in config.yaml; this package holds the
// instructions we send to models and the short phrases spoken on failure.
//
// Convention: each prompt category gets its own file (system.go,
// correction.go, retry.go) with an exported function that accepts the
// dynamic parts and returns the fully interpolated prompt string.
package prompts
