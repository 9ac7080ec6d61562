package mqtt

import (
	"encoding/json"
	"time"

	"github.com/nugget/thane-voice/internal/events"
)

// StatePayload is the retained JSON document on <prefix>/state.
type StatePayload struct {
	State    string    `json:"state"`
	Previous string    `json:"previous,omitempty"`
	Since    time.Time `json:"since"`
	Device   string    `json:"device"`
}

// statePayload converts a listener state_change event. ok is false for
// any other event.
func statePayload(e events.Event, device string) (StatePayload, bool) {
	if e.Source != events.SourceListener || e.Kind != events.KindStateChange {
		return StatePayload{}, false
	}
	to, _ := e.Data["to"].(string)
	if to == "" {
		return StatePayload{}, false
	}
	from, _ := e.Data["from"].(string)
	return StatePayload{State: to, Previous: from, Since: e.Timestamp, Device: device}, true
}

func (s StatePayload) encode() []byte {
	data, _ := json.Marshal(s)
	return data
}
