package stream

import "net/http"

func WithPingIntervalSec(p int) func(*Hub) {
	return func(h *Hub) {
		h.pingIntervalSecs = p
	}
}

// WithInitialPayload sends f() to every client right after the upgrade, so
// late joiners see the current state before the first change arrives.
func WithInitialPayload(f func() []byte) func(*Hub) {
	return func(h *Hub) {
		h.initialPayload = f
	}
}

func WithCheckOrigin(f func(r *http.Request) bool) func(*Hub) {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = f
	}
}
