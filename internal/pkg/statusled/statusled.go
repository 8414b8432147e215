package statusled

import (
	"context"
	"time"

	"github.com/anicoll/relay-controller/internal/pkg/gpio"
	"github.com/anicoll/relay-controller/internal/pkg/model"
	"go.uber.org/zap"
)

const (
	fastHalfPeriod = 125 * time.Millisecond
	slowHalfPeriod = 500 * time.Millisecond
)

type connTracker interface {
	Current() model.ConnState
	Subscribe() <-chan model.ConnState
}

// Renderer maps connectivity onto the status LED: fast blink while
// disconnected, slow blink on WiFi only, solid once the backend is reached.
type Renderer struct {
	led     gpio.OutputPin
	tracker connTracker
	logger  *zap.Logger
}

func New(led gpio.OutputPin, tracker connTracker) *Renderer {
	return &Renderer{
		led:     led,
		tracker: tracker,
		logger:  zap.L(),
	}
}

// HalfPeriod returns the blink half-period for a state; zero means solid on.
func HalfPeriod(state model.ConnState) time.Duration {
	switch {
	case state.AtLeast(model.BackendConnected):
		return 0
	case state.AtLeast(model.WifiOnly):
		return slowHalfPeriod
	}
	return fastHalfPeriod
}

// Run drives the LED until ctx is cancelled. The LED is switched off on the
// way out.
func (r *Renderer) Run(ctx context.Context) error {
	updates := r.tracker.Subscribe()
	state := r.tracker.Current()
	lit := false

	apply := func() {
		half := HalfPeriod(state)
		if half == 0 {
			lit = true
		} else {
			lit = !lit
		}
		if err := r.led.Set(lit); err != nil {
			r.logger.Error("failed to drive status led", zap.Error(err))
		}
	}
	apply()

	current := HalfPeriod(state)
	if current == 0 {
		current = fastHalfPeriod
	}
	ticker := time.NewTicker(current)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = r.led.Set(false)
			return ctx.Err()
		case state = <-updates:
			if half := HalfPeriod(state); half != 0 && half != current {
				ticker.Reset(half)
				current = half
			}
			apply()
		case <-ticker.C:
			if HalfPeriod(state) == 0 {
				continue
			}
			apply()
		}
	}
}
