package switches

import (
	"context"
	"fmt"
	"time"

	"github.com/anicoll/relay-controller/internal/pkg/gpio"
	"github.com/anicoll/relay-controller/internal/pkg/model"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type relayBank interface {
	Toggle(ctx context.Context, idx int, source string) (bool, error)
}

// Scanner polls the manual switch inputs and debounces each line. A press
// toggles the relay with the same index, mirroring the wall-switch wiring of
// the classroom boards.
type Scanner struct {
	ins      []gpio.InputPin
	poll     time.Duration
	debounce time.Duration
	bank     relayBank
	logger   *zap.Logger

	lines []lineState
}

type lineState struct {
	stable         bool
	candidate      bool
	candidateSince time.Time
}

// New provisions the switch inputs. Pins listed in reserved are left
// unprovisioned and never scanned; their index still counts so the
// switch-to-relay mapping stays stable. The stock board shares GPIO2 between
// the onboard LED and an input, and scanning it would debounce the blink
// pattern as presses.
func New(chip gpio.Chip, pins []int, reserved []int, activeLow bool, poll, debounce time.Duration, bank relayBank) (*Scanner, error) {
	ins := make([]gpio.InputPin, len(pins))
	for idx, pin := range pins {
		if lo.Contains(reserved, pin) {
			continue
		}
		in, err := chip.Input(pin, activeLow)
		if err != nil {
			return nil, fmt.Errorf("provision switch gpio%d: %w", pin, err)
		}
		ins[idx] = in
	}
	return &Scanner{
		ins:      ins,
		poll:     poll,
		debounce: debounce,
		bank:     bank,
		logger:   zap.L(),
		lines:    make([]lineState, len(pins)),
	}, nil
}

// Run polls until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.scan(ctx, now)
		}
	}
}

// scan performs one debounce pass. A level change is accepted only once it
// has held for the full debounce window; press edges toggle the paired relay.
func (s *Scanner) scan(ctx context.Context, now time.Time) {
	for idx := range s.ins {
		if s.ins[idx] == nil {
			continue
		}
		pressed, err := s.ins[idx].Read()
		if err != nil {
			s.logger.Error("failed to read switch", zap.Int("switch", idx), zap.Error(err))
			continue
		}
		line := &s.lines[idx]
		if pressed == line.stable {
			line.candidate = line.stable
			continue
		}
		if pressed != line.candidate {
			line.candidate = pressed
			line.candidateSince = now
			continue
		}
		if now.Sub(line.candidateSince) < s.debounce {
			continue
		}
		line.stable = pressed
		if !pressed {
			continue // release edge
		}
		on, err := s.bank.Toggle(ctx, idx, model.SourceManual)
		if err != nil {
			s.logger.Error("manual toggle failed", zap.Int("switch", idx), zap.Error(err))
			continue
		}
		s.logger.Info("manual switch pressed", zap.Int("switch", idx), zap.Bool("relay_on", on))
	}
}
