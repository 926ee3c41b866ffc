// Package gpio provides GPIO input reading with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the stop button input.
type Reader interface {
	// Read returns the logical state of the button.
	// The input is active-low with a pull-up: raw 0 = pressed.
	Read() (pressed bool, err error)

	// Close releases GPIO resources.
	Close() error
}

// DefaultPin is the BCM pin the stop button is usually wired to.
const DefaultPin = 21
