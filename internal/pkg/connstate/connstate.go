package connstate

import (
	"context"
	"sync"

	"github.com/anggasct/fluo"
	"github.com/anicoll/relay-controller/internal/pkg/model"
	"go.uber.org/zap"
)

// Tracker holds the connectivity state machine. Link owners (the network
// monitor, the broker session) report edge events; observers such as the
// status LED subscribe to the resulting state.
//
// The machine encodes the strict connectivity progression: the broker can
// only be reached through WiFi, and losing WiFi from the fully connected
// state drops straight to disconnected.
type Tracker struct {
	mu      sync.Mutex
	machine fluo.Machine
	subs    []chan model.ConnState
	logger  *zap.Logger

	// brokerLive latches the last broker report. The broker session and the
	// link probe report independently, so a broker connect can land before
	// the first probe confirms the link; the latch lets Dispatch replay it.
	brokerLive bool
}

func New() (*Tracker, error) {
	b := fluo.NewMachine()

	b.State(model.WifiDisconnected.String()).Initial().
		To(model.WifiOnly.String()).On(model.WifiUp.String())

	b.State(model.WifiOnly.String()).
		To(model.WifiDisconnected.String()).On(model.WifiDown.String()).
		To(model.BackendConnected.String()).On(model.BrokerUp.String())

	b.State(model.BackendConnected.String()).
		To(model.WifiOnly.String()).On(model.BrokerDown.String()).
		To(model.WifiDisconnected.String()).On(model.WifiDown.String())

	machine := b.Build().CreateInstance()
	if err := machine.Start(); err != nil {
		return nil, err
	}

	return &Tracker{
		machine: machine,
		logger:  zap.L(),
	}, nil
}

// Dispatch feeds an edge event into the machine. Events that have no
// transition from the current state are no-ops: a broker-down report while
// WiFi is already gone changes nothing.
func (t *Tracker) Dispatch(ctx context.Context, event model.ConnEvent) {
	t.mu.Lock()
	switch event {
	case model.BrokerUp:
		t.brokerLive = true
	case model.BrokerDown:
		t.brokerLive = false
	}
	result := t.machine.SendEventWithContext(ctx, event.String(), nil)
	if result.StateChanged && event == model.WifiUp && t.brokerLive {
		// An early broker connect was dropped in the disconnected state;
		// replay it now that the link is confirmed.
		result = t.machine.SendEventWithContext(ctx, model.BrokerUp.String(), nil)
	}
	subs := append([]chan model.ConnState{}, t.subs...)
	t.mu.Unlock()

	if !result.StateChanged {
		t.logger.Debug("connectivity event ignored",
			zap.String("event", event.String()),
			zap.String("state", result.CurrentState))
		return
	}

	after := stateFromName(result.CurrentState)
	t.logger.Info("connectivity changed",
		zap.String("from", result.PreviousState),
		zap.String("to", result.CurrentState),
		zap.String("event", event.String()))
	for _, sub := range subs {
		select {
		case sub <- after:
		default: // slow observers miss intermediate states, never block the tracker
		}
	}
}

func (t *Tracker) Current() model.ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return stateFromName(t.machine.CurrentState())
}

func stateFromName(name string) model.ConnState {
	switch name {
	case model.WifiOnly.String():
		return model.WifiOnly
	case model.BackendConnected.String():
		return model.BackendConnected
	}
	return model.WifiDisconnected
}

// Subscribe returns a buffered channel receiving state changes. A reader
// that falls far behind loses changes; Current() is authoritative.
func (t *Tracker) Subscribe() <-chan model.ConnState {
	sub := make(chan model.ConnState, 8)
	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()
	return sub
}
