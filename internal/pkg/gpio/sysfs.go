package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// SysfsChip drives GPIO lines through the Linux sysfs interface. It is the
// driver used on real hardware; no library in our stack covers sysfs GPIO, so
// the export/direction/value files are written directly.
type SysfsChip struct {
	base     string
	mu       sync.Mutex
	exported []int
}

func NewSysfsChip() *SysfsChip {
	return &SysfsChip{base: "/sys/class/gpio"}
}

func (c *SysfsChip) export(pin int) (string, error) {
	dir := filepath.Join(c.base, fmt.Sprintf("gpio%d", pin))
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.WriteFile(filepath.Join(c.base, "export"), fmt.Appendf(nil, "%d", pin), 0o644); err != nil {
			return "", fmt.Errorf("export gpio%d: %w", pin, err)
		}
		// The kernel needs a moment to create the pin directory and fix
		// its permissions after export.
		time.Sleep(50 * time.Millisecond)
	}
	c.mu.Lock()
	c.exported = append(c.exported, pin)
	c.mu.Unlock()
	return dir, nil
}

func (c *SysfsChip) Output(pin int, activeHigh bool) (OutputPin, error) {
	dir, err := c.export(pin)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "direction"), []byte("out"), 0o644); err != nil {
		return nil, fmt.Errorf("direction gpio%d: %w", pin, err)
	}
	return &sysfsOutput{valuePath: filepath.Join(dir, "value"), activeHigh: activeHigh}, nil
}

func (c *SysfsChip) Input(pin int, activeLow bool) (InputPin, error) {
	dir, err := c.export(pin)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "direction"), []byte("in"), 0o644); err != nil {
		return nil, fmt.Errorf("direction gpio%d: %w", pin, err)
	}
	return &sysfsInput{valuePath: filepath.Join(dir, "value"), activeLow: activeLow}, nil
}

func (c *SysfsChip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, pin := range c.exported {
		if err := os.WriteFile(filepath.Join(c.base, "unexport"), fmt.Appendf(nil, "%d", pin), 0o644); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.exported = nil
	return firstErr
}

type sysfsOutput struct {
	valuePath  string
	activeHigh bool
	mu         sync.Mutex
	on         bool
}

func (o *sysfsOutput) Set(on bool) error {
	value := "0"
	if on == o.activeHigh {
		value = "1"
	}
	if err := os.WriteFile(o.valuePath, []byte(value), 0o644); err != nil {
		return err
	}
	o.mu.Lock()
	o.on = on
	o.mu.Unlock()
	return nil
}

func (o *sysfsOutput) Get() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.on
}

type sysfsInput struct {
	valuePath string
	activeLow bool
}

func (i *sysfsInput) Read() (bool, error) {
	raw, err := os.ReadFile(i.valuePath)
	if err != nil {
		return false, err
	}
	level := strings.TrimSpace(string(raw)) == "1"
	if i.activeLow {
		return !level, nil
	}
	return level, nil
}
