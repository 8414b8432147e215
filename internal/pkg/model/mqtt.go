package model

import (
	"fmt"
	"time"

	"github.com/gosimple/slug"
)

// Envelope is the message shape the backend ingestion pipeline expects.
type Envelope struct {
	DeviceID  string         `json:"device_id"`
	Timestamp int64          `json:"timestamp"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
}

const (
	EnvelopeTypeTelemetry = "telemetry"
	EnvelopeTypeState     = "state"
	EnvelopeTypeAck       = "ack"
)

// Command is a relay command received over MQTT or the local API.
type Command struct {
	RequestID string `json:"request_id"`
	Action    Action `json:"action"`
	Relay     *int   `json:"relay,omitempty"`
}

// Ack reports the outcome of a Command back to the sender.
type Ack struct {
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// RelayState is published, retained, per relay.
type RelayState struct {
	Relay     int    `json:"relay"`
	On        bool   `json:"on"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"`
}

// StateChange is the internal fan-out event for a relay transition.
type StateChange struct {
	Relay  int
	On     bool
	Source string
	At     time.Time
}

const (
	SourceManual   = "manual"
	SourceMQTT     = "mqtt"
	SourceSchedule = "schedule"
	SourceAPI      = "api"
	SourceRestore  = "restore"
)

// DeviceSlug normalizes a device ID into a topic-safe identifier.
func DeviceSlug(deviceID string) string {
	return slug.Make(deviceID)
}

func StatusTopic(deviceID string) string {
	return fmt.Sprintf("classroom/%s/status", DeviceSlug(deviceID))
}

func TelemetryTopic(deviceID string) string {
	return fmt.Sprintf("classroom/%s/telemetry", DeviceSlug(deviceID))
}

func AckTopic(deviceID string) string {
	return fmt.Sprintf("classroom/%s/ack", DeviceSlug(deviceID))
}

func CommandTopic(deviceID string) string {
	return fmt.Sprintf("classroom/%s/cmd", DeviceSlug(deviceID))
}

func RelayStateTopic(deviceID string, relay int) string {
	return fmt.Sprintf("classroom/%s/relay/%d/state", DeviceSlug(deviceID), relay)
}

func RelaySetTopic(deviceID string, relay int) string {
	return fmt.Sprintf("classroom/%s/relay/%d/set", DeviceSlug(deviceID), relay)
}

// RelaySetWildcard matches set requests for every relay on the device.
func RelaySetWildcard(deviceID string) string {
	return fmt.Sprintf("classroom/%s/relay/+/set", DeviceSlug(deviceID))
}
