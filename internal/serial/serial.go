// Package serial is the byte-level link to the printer controller.
// The real implementation wraps go.bug.st/serial.
// The fake implementation allows testing without hardware.
package serial

import (
	"errors"
	"path"
	"strings"
	"time"
)

// DefaultBaud is used when no baud rate is configured.
const DefaultBaud = 115200

// ErrNoDevices is returned by discovery when no serial device is present.
var ErrNoDevices = errors.New("serial: no devices found")

// Port is an open connection to the printer.
type Port interface {
	// Write sends raw bytes.
	Write(p []byte) (int, error)

	// Read returns whatever bytes are available. When the read timeout
	// elapses with nothing received it returns 0 and a nil error.
	Read(p []byte) (int, error)

	// Drain blocks until all written bytes have been transmitted.
	Drain() error

	// ResetBuffers discards pending input and output.
	ResetBuffers() error

	// SetReadTimeout bounds how long Read waits for the first byte.
	SetReadTimeout(d time.Duration) error

	// Close releases the device.
	Close() error
}

// Dialer discovers and opens serial devices.
type Dialer interface {
	// ListPorts returns the names of the serial devices currently present.
	ListPorts() ([]string, error)

	// Open opens path at baud. timeout is the initial read timeout.
	Open(path string, baud int, timeout time.Duration) (Port, error)
}

// Connector selects the device to use. An empty Port means automatic
// discovery of the first available device.
type Connector struct {
	Port string
	Baud int
}

// Auto reports whether the connector asks for automatic discovery.
func (c Connector) Auto() bool {
	return c.Port == ""
}

// BaudOrDefault returns the configured baud rate or DefaultBaud.
func (c Connector) BaudOrDefault() int {
	if c.Baud <= 0 {
		return DefaultBaud
	}
	return c.Baud
}

// DevicePath turns an enumerated port name into an openable path. Unix-style
// names are reduced to their last segment and placed under /dev; bare names
// such as COM3 are returned unchanged.
func DevicePath(name string) string {
	if !strings.Contains(name, "/") {
		return name
	}
	return "/dev/" + path.Base(name)
}
