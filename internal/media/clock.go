package media

import "sync"

// Clock is the audio master clock. Only the AudioSink writes it.
type Clock struct {
	mutex   sync.Mutex
	seconds float64
	serial  int
	valid   bool
}

func NewClock() *Clock {
	return &Clock{}
}

// Set moves the clock to seconds for the given serial. Within one serial the
// clock never goes backwards; updates from an older serial are ignored.
func (c *Clock) Set(seconds float64, serial int) bool {
	if !HasPTS(seconds) {
		return false
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	switch {
	case serial < c.serial:
		return false
	case serial == c.serial && c.valid && seconds < c.seconds:
		return false
	}

	c.seconds = seconds
	c.serial = serial
	c.valid = true
	return true
}

// Advance moves a valid clock forward by d seconds of played silence. It is a
// no-op for an invalid clock or an older serial.
func (c *Clock) Advance(d float64, serial int) bool {
	if d <= 0 || !HasPTS(d) {
		return false
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.valid || serial != c.serial {
		return false
	}

	c.seconds += d
	return true
}

// Reset invalidates the clock and moves it to a new serial.
func (c *Clock) Reset(serial int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.seconds = 0
	c.serial = serial
	c.valid = false
}

// Time returns the current clock value, and false if no audio has been
// played yet in the current serial.
func (c *Clock) Time() (float64, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.seconds, c.valid
}

func (c *Clock) Serial() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.serial
}
