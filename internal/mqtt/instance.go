package mqtt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// instanceFile holds the broker client identity inside the data dir.
const instanceFile = "mqtt_instance_id"

// LoadOrCreateInstanceID returns the persisted client identity from
// dataDir, generating and saving a UUIDv7 on first use. A stable ID
// lets the broker hand a reconnecting assistant its own session back
// instead of treating every restart as a new client.
func LoadOrCreateInstanceID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, instanceFile)

	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate instance ID: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("persist instance ID to %s: %w", path, err)
	}
	return id.String(), nil
}

// ClientID derives the MQTT client identifier from the device name and
// the random tail of the instance ID, so two assistants sharing a
// device name still get distinct sessions.
func ClientID(deviceName, instanceID string) string {
	short := instanceID[strings.LastIndex(instanceID, "-")+1:]
	if short == "" {
		return deviceName
	}
	return deviceName + "-" + short
}
