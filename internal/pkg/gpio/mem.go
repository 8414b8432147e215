package gpio

import "sync"

// MemChip is an in-memory GPIO controller used by tests and simulate mode.
// Levels are electrical: polarity inversion happens in the pin wrappers, the
// same as on real hardware.
type MemChip struct {
	mu     sync.Mutex
	levels map[int]bool
}

func NewMemChip() *MemChip {
	return &MemChip{levels: make(map[int]bool)}
}

func (c *MemChip) Output(pin int, activeHigh bool) (OutputPin, error) {
	return &memOutput{chip: c, pin: pin, activeHigh: activeHigh}, nil
}

func (c *MemChip) Input(pin int, activeLow bool) (InputPin, error) {
	if activeLow {
		// Pull-up: an unwired input floats high, i.e. not pressed.
		c.SetLevel(pin, true)
	}
	return &memInput{chip: c, pin: pin, activeLow: activeLow}, nil
}

func (c *MemChip) Close() error { return nil }

// Level returns the electrical level of a pin.
func (c *MemChip) Level(pin int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.levels[pin]
}

// SetLevel forces the electrical level of a pin, simulating external wiring.
func (c *MemChip) SetLevel(pin int, high bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.levels[pin] = high
}

type memOutput struct {
	chip       *MemChip
	pin        int
	activeHigh bool
	mu         sync.Mutex
	on         bool
}

func (o *memOutput) Set(on bool) error {
	o.mu.Lock()
	o.on = on
	o.mu.Unlock()
	o.chip.SetLevel(o.pin, on == o.activeHigh)
	return nil
}

func (o *memOutput) Get() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.on
}

type memInput struct {
	chip      *MemChip
	pin       int
	activeLow bool
}

func (i *memInput) Read() (bool, error) {
	level := i.chip.Level(i.pin)
	if i.activeLow {
		return !level, nil
	}
	return level, nil
}
