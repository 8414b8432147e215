package link

import (
	"context"
	"net"
	"time"

	"github.com/anicoll/relay-controller/internal/pkg/model"
	"go.uber.org/zap"
)

const (
	defaultInterval = 5 * time.Second
	probeTimeout    = 2 * time.Second
)

type connTracker interface {
	Dispatch(ctx context.Context, event model.ConnEvent)
}

// Monitor watches link-layer connectivity. On the original boards the
// firmware owns WiFi association; here the OS associates and the monitor
// verifies the network is actually usable by probing the broker host's TCP
// port on an interval. Only changes are reported, so a flapping link does
// not flood the state machine.
type Monitor struct {
	addr     string
	interval time.Duration
	tracker  connTracker
	logger   *zap.Logger

	// probe is swapped out in tests.
	probe func(ctx context.Context) bool

	reported bool
	up       bool
}

func New(addr string, interval time.Duration, tracker connTracker) *Monitor {
	m := &Monitor{
		addr:     addr,
		interval: interval,
		tracker:  tracker,
		logger:   zap.L(),
	}
	if m.interval <= 0 {
		m.interval = defaultInterval
	}
	m.probe = m.dialProbe
	return m
}

func (m *Monitor) dialProbe(ctx context.Context) bool {
	dialCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", m.addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Run probes until ctx is cancelled. The first probe result is always
// reported so the tracker starts from an observed state.
func (m *Monitor) Run(ctx context.Context) error {
	m.check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	up := m.probe(ctx)
	if m.reported && up == m.up {
		return
	}
	m.reported = true
	m.up = up
	if up {
		m.logger.Debug("network link up", zap.String("probe_addr", m.addr))
		m.tracker.Dispatch(ctx, model.WifiUp)
		return
	}
	m.logger.Warn("network link down", zap.String("probe_addr", m.addr))
	m.tracker.Dispatch(ctx, model.WifiDown)
}
