package capability

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// PluginState is one entry of the enable-state file.
type PluginState struct {
	Enabled bool `json:"enabled"`
}

// EnableState maps plugin names to their state, as written by the
// administration front-end:
//
//	{"weather": {"enabled": false}}
type EnableState map[string]PluginState

// Enabled reports whether the named plugin may load. Plugins absent from
// the map are enabled.
func (s EnableState) Enabled(name string) bool {
	st, ok := s[name]
	if !ok {
		return true
	}
	return st.Enabled
}

// LoadEnableState reads the enable-state file. A missing file is an
// empty state, not an error.
func LoadEnableState(path string) (EnableState, error) {
	if path == "" {
		return EnableState{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return EnableState{}, nil
	}
	if err != nil {
		return EnableState{}, fmt.Errorf("read enable state: %w", err)
	}

	var state EnableState
	if err := json.Unmarshal(data, &state); err != nil {
		return EnableState{}, fmt.Errorf("parse enable state %s: %w", path, err)
	}
	if state == nil {
		state = EnableState{}
	}
	return state, nil
}
