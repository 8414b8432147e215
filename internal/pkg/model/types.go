package model

import "github.com/samber/lo"

// ConnState describes device connectivity as a strict progression: no link,
// link-layer only, fully connected to the backend broker. The device is in
// exactly one state at any instant.
type ConnState int

const (
	WifiDisconnected ConnState = iota
	WifiOnly
	BackendConnected
)

func (c ConnState) String() string {
	switch c {
	case WifiDisconnected:
		return "wifi_disconnected"
	case WifiOnly:
		return "wifi_only"
	case BackendConnected:
		return "backend_connected"
	}
	return "unknown"
}

// AtLeast reports whether the state has reached the given connectivity level.
func (c ConnState) AtLeast(other ConnState) bool {
	return c >= other
}

// ConnEvent drives transitions between connection states.
type ConnEvent string

func (e ConnEvent) String() string {
	return string(e)
}

const (
	WifiUp     ConnEvent = "WIFI_UP"
	WifiDown   ConnEvent = "WIFI_DOWN"
	BrokerUp   ConnEvent = "BROKER_UP"
	BrokerDown ConnEvent = "BROKER_DOWN"
)

// Action is a relay command verb as carried on the wire.
type Action string

func (a Action) String() string {
	return string(a)
}

const (
	ActionOn     Action = "on"
	ActionOff    Action = "off"
	ActionToggle Action = "toggle"
	ActionAllOff Action = "all_off"
)

var Actions = []Action{ActionOn, ActionOff, ActionToggle, ActionAllOff}

// KnownAction reports whether a is one of the wire verbs.
func KnownAction(a Action) bool {
	return lo.Contains(Actions, a)
}
