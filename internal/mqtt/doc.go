// Package mqtt bridges the assistant to an MQTT broker. Command
// messages published to <prefix>/command are fed into the same
// [ipc.Queue] the unix socket uses, and listener state changes from
// the event bus are published retained to <prefix>/state so dashboards
// can show whether the assistant is armed, capturing, or busy.
//
// Connection management uses Eclipse Paho v2's [autopaho] package. On
// every (re-)connect the bridge publishes a birth message ("online")
// to <prefix>/availability, re-subscribes to the command topic, and
// republishes the last known state. A will message flips availability
// to "offline" on unexpected disconnects.
//
// [ipc.Queue]: github.com/nugget/thane-voice/internal/ipc.Queue
package mqtt
