package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/anicoll/relay-controller/internal/pkg/gpio"
	"github.com/anicoll/relay-controller/internal/pkg/model"
	"github.com/anicoll/relay-controller/internal/pkg/publisher"
	"go.uber.org/zap"
)

var (
	ErrRelayIndex    = errors.New("relay index out of range")
	ErrUnknownAction = errors.New("unknown relay action")
)

type snapshotter interface {
	Save(states []bool) error
}

// Bank owns the relay output pins. All transitions go through it so polarity,
// fan-out and snapshotting cannot be bypassed.
type Bank struct {
	// ioMu serializes a transition end to end: pin drive, fan-out and
	// snapshot. Without it two concurrent Sets could publish and persist
	// out of order, leaving a stale snapshot on disk and a stale retained
	// topic. Always taken before mu.
	ioMu   sync.Mutex
	mu     sync.Mutex
	outs   []gpio.OutputPin
	snap   snapshotter
	logger *zap.Logger
}

// New provisions one output per pin. activeHigh matches the board's relay
// wiring and is applied by the GPIO driver.
func New(chip gpio.Chip, pins []int, activeHigh bool, snap snapshotter) (*Bank, error) {
	outs := make([]gpio.OutputPin, 0, len(pins))
	for _, pin := range pins {
		out, err := chip.Output(pin, activeHigh)
		if err != nil {
			return nil, fmt.Errorf("provision relay gpio%d: %w", pin, err)
		}
		outs = append(outs, out)
	}
	return &Bank{
		outs:   outs,
		snap:   snap,
		logger: zap.L(),
	}, nil
}

func (b *Bank) Len() int {
	return len(b.outs)
}

// Restore drives the bank to a previously saved state once at startup.
// Transitions carry the restore source so downstream consumers can tell a
// power-up replay from a live command.
func (b *Bank) Restore(ctx context.Context, states []bool) error {
	for idx := range b.outs {
		on := idx < len(states) && states[idx]
		if err := b.Set(ctx, idx, on, model.SourceRestore); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bank) Set(ctx context.Context, idx int, on bool, source string) error {
	b.ioMu.Lock()
	defer b.ioMu.Unlock()
	return b.set(ctx, idx, on, source)
}

// set runs one transition; callers hold ioMu. The pin lock is released
// before fan-out because publishers read States() back.
func (b *Bank) set(ctx context.Context, idx int, on bool, source string) error {
	b.mu.Lock()
	if idx < 0 || idx >= len(b.outs) {
		b.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrRelayIndex, idx)
	}
	if err := b.outs[idx].Set(on); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("drive relay %d: %w", idx, err)
	}
	states := make([]bool, len(b.outs))
	for i, out := range b.outs {
		states[i] = out.Get()
	}
	b.mu.Unlock()

	b.logger.Info("relay switched", zap.Int("relay", idx), zap.Bool("on", on), zap.String("source", source))

	publisher.PublishChanges(ctx, model.StateChange{Relay: idx, On: on, Source: source, At: time.Now()})
	b.persist(states)
	return nil
}

// Toggle reads and flips under the transition lock so two concurrent
// toggles cannot coalesce into one.
func (b *Bank) Toggle(ctx context.Context, idx int, source string) (bool, error) {
	b.ioMu.Lock()
	defer b.ioMu.Unlock()

	b.mu.Lock()
	if idx < 0 || idx >= len(b.outs) {
		b.mu.Unlock()
		return false, fmt.Errorf("%w: %d", ErrRelayIndex, idx)
	}
	next := !b.outs[idx].Get()
	b.mu.Unlock()

	return next, b.set(ctx, idx, next, source)
}

func (b *Bank) Get(idx int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx < 0 || idx >= len(b.outs) {
		return false, fmt.Errorf("%w: %d", ErrRelayIndex, idx)
	}
	return b.outs[idx].Get(), nil
}

func (b *Bank) States() []bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	states := make([]bool, len(b.outs))
	for idx, out := range b.outs {
		states[idx] = out.Get()
	}
	return states
}

func (b *Bank) AllOff(ctx context.Context, source string) error {
	for idx := range b.outs {
		if err := b.Set(ctx, idx, false, source); err != nil {
			return err
		}
	}
	return nil
}

// Apply executes a wire command against the bank.
func (b *Bank) Apply(ctx context.Context, cmd model.Command, source string) error {
	if cmd.Action == model.ActionAllOff {
		return b.AllOff(ctx, source)
	}
	if cmd.Relay == nil {
		return fmt.Errorf("%w: action %s requires a relay", ErrRelayIndex, cmd.Action)
	}
	switch cmd.Action {
	case model.ActionOn:
		return b.Set(ctx, *cmd.Relay, true, source)
	case model.ActionOff:
		return b.Set(ctx, *cmd.Relay, false, source)
	case model.ActionToggle:
		_, err := b.Toggle(ctx, *cmd.Relay, source)
		return err
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
}

func (b *Bank) persist(states []bool) {
	if b.snap == nil {
		return
	}
	if err := b.snap.Save(states); err != nil {
		b.logger.Error("failed to snapshot relay state", zap.Error(err))
	}
}
