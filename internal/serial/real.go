package serial

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	bugst "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// RealDialer opens actual serial devices.
type RealDialer struct{}

// NewRealDialer creates a dialer backed by the operating system's serial devices.
func NewRealDialer() *RealDialer {
	return &RealDialer{}
}

// ListPorts enumerates serial devices, logging USB details when available.
func (d *RealDialer) ListPorts() ([]string, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		// Some platforms lack detailed enumeration; fall back to plain names.
		names, plainErr := bugst.GetPortsList()
		if plainErr != nil {
			return nil, fmt.Errorf("list ports: %w", err)
		}
		return names, nil
	}

	names := make([]string, 0, len(details))
	for _, p := range details {
		ev := log.Debug().Str("port", p.Name)
		if p.IsUSB {
			ev = ev.Str("vid", p.VID).Str("pid", p.PID).Str("product", p.Product)
		}
		ev.Msg("serial: found port")
		names = append(names, p.Name)
	}
	return names, nil
}

// Open opens path in 8N1 at the given baud rate.
func (d *RealDialer) Open(path string, baud int, timeout time.Duration) (Port, error) {
	p, err := bugst.Open(path, &bugst.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}
	return &RealPort{port: p, path: path}, nil
}

// RealPort is an open go.bug.st/serial port.
type RealPort struct {
	port bugst.Port
	path string
}

func (p *RealPort) Write(b []byte) (int, error) {
	n, err := p.port.Write(b)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", p.path, err)
	}
	return n, nil
}

func (p *RealPort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if err != nil {
		return n, fmt.Errorf("read %s: %w", p.path, err)
	}
	return n, nil
}

func (p *RealPort) Drain() error {
	return p.port.Drain()
}

// ResetBuffers discards both directions.
func (p *RealPort) ResetBuffers() error {
	if err := p.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("reset input buffer: %w", err)
	}
	if err := p.port.ResetOutputBuffer(); err != nil {
		return fmt.Errorf("reset output buffer: %w", err)
	}
	return nil
}

func (p *RealPort) SetReadTimeout(d time.Duration) error {
	return p.port.SetReadTimeout(d)
}

func (p *RealPort) Close() error {
	return p.port.Close()
}
