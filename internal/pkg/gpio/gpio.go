package gpio

// OutputPin drives a single GPIO line. Set takes the logical state; electrical
// polarity is applied by the driver so callers never reason about active-low
// wiring.
type OutputPin interface {
	Set(on bool) error
	Get() bool
}

// InputPin reads a single GPIO line. Read returns the logical state (pressed /
// asserted) with polarity already applied.
type InputPin interface {
	Read() (bool, error)
}

// Chip provisions pins on a GPIO controller.
type Chip interface {
	// Output configures pin as an output. activeHigh=false inverts writes.
	Output(pin int, activeHigh bool) (OutputPin, error)
	// Input configures pin as an input. activeLow=true inverts reads, matching
	// switches wired to ground with pull-ups.
	Input(pin int, activeLow bool) (InputPin, error)
	Close() error
}
