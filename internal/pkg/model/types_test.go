package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnStateOrdering(t *testing.T) {
	// The three states form a strict connectivity progression.
	assert.True(t, WifiDisconnected < WifiOnly)
	assert.True(t, WifiOnly < BackendConnected)

	assert.True(t, BackendConnected.AtLeast(WifiOnly))
	assert.True(t, WifiOnly.AtLeast(WifiOnly))
	assert.False(t, WifiDisconnected.AtLeast(WifiOnly))
}

func TestConnStateString(t *testing.T) {
	tests := map[ConnState]string{
		WifiDisconnected: "wifi_disconnected",
		WifiOnly:         "wifi_only",
		BackendConnected: "backend_connected",
		ConnState(42):    "unknown",
	}
	for state, want := range tests {
		assert.Equal(t, want, state.String())
	}
}

func TestKnownAction(t *testing.T) {
	for _, action := range Actions {
		assert.True(t, KnownAction(action), action.String())
	}
	assert.False(t, KnownAction(Action("reboot")))
	assert.False(t, KnownAction(Action("")))
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "classroom/room-101/status", StatusTopic("Room 101"))
	assert.Equal(t, "classroom/room-101/relay/2/state", RelayStateTopic("Room 101", 2))
	assert.Equal(t, "classroom/room-101/relay/0/set", RelaySetTopic("Room 101", 0))
	assert.Equal(t, "classroom/room-101/relay/+/set", RelaySetWildcard("Room 101"))
	assert.Equal(t, "classroom/room-101/cmd", CommandTopic("Room 101"))
	assert.Equal(t, "classroom/room-101/telemetry", TelemetryTopic("Room 101"))
	assert.Equal(t, "classroom/room-101/ack", AckTopic("Room 101"))
}
