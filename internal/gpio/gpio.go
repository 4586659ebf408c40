// Package gpio provides the physical reset button with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the reset button level.
type Reader interface {
	// Read returns true while the button is held down.
	// The line is active-low: raw 0 = pressed.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// DefaultPinReset is the BCM pin of the reset button. Negative disables it.
const DefaultPinReset = 17
