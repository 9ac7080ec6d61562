package orchestrator

import (
	"fmt"
	"os"
	"strings"

	"github.com/nugget/thane-voice/internal/config"
	"github.com/nugget/thane-voice/internal/prompts"
)

// LoadPersona returns the persona text: the persona file when set, the
// inline persona otherwise, and a generated default as a last resort.
func LoadPersona(cfg config.AssistantConfig) (string, error) {
	if cfg.PersonaFile != "" {
		data, err := os.ReadFile(cfg.PersonaFile)
		if err != nil {
			return "", fmt.Errorf("read persona file: %w", err)
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			return text, nil
		}
	}
	if text := strings.TrimSpace(cfg.Persona); text != "" {
		return text, nil
	}
	return prompts.DefaultPersona(cfg.Name), nil
}
