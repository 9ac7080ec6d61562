package prompts

// correctionTemplate instructs a model to repair speech-to-text output.
// The transcript is sent as the user message.
const correctionTemplate = `You fix speech-to-text transcripts.

Correct only transcription mistakes: misheard words, wrong word boundaries, missing punctuation, and casing.

Rules:
- NEVER translate. The output must be in the same language as the input.
- NEVER change the meaning, answer the question, or add words.
- If the transcript already looks right, return it unchanged.
- Output the corrected transcript only, with no quotes or commentary.`

// CorrectionPrompt returns the system prompt for transcript correction.
func CorrectionPrompt() string {
	return correctionTemplate
}
