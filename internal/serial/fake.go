package serial

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// FakePort is a test double that records written lines and replays scripted
// or generated responses.
type FakePort struct {
	mu       sync.Mutex
	pending  []byte
	partial  string
	written  []string
	raw      []byte
	timeout  time.Duration
	notify   chan struct{}
	resets   int
	drains   int
	closed   bool
	timeouts []time.Duration

	// Respond, if set, is called for every complete written line and its
	// result is queued for reading. An empty result sends nothing.
	Respond func(line string) string

	// WriteError, if set, will be returned by Write.
	WriteError error

	// DrainError, if set, will be returned by Drain.
	DrainError error

	// ReadError, if set, will be returned by Read.
	ReadError error
}

// NewFakePort creates a FakePort with a short read timeout.
func NewFakePort() *FakePort {
	return &FakePort{
		timeout: 10 * time.Millisecond,
		notify:  make(chan struct{}, 1),
	}
}

// AlwaysOK is a Respond function that acknowledges every command.
func AlwaysOK(string) string { return "ok\n" }

// Feed makes s available to the next Read.
func (f *FakePort) Feed(s string) {
	f.mu.Lock()
	f.pending = append(f.pending, s...)
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// Write records p; each complete non-blank line is passed to Respond.
func (f *FakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, errors.New("fake port closed")
	}
	if f.WriteError != nil {
		err := f.WriteError
		f.mu.Unlock()
		return 0, err
	}
	f.raw = append(f.raw, p...)
	f.partial += string(p)
	var lines []string
	for {
		i := strings.IndexByte(f.partial, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(f.partial[:i])
		f.partial = f.partial[i+1:]
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	f.written = append(f.written, lines...)
	respond := f.Respond
	f.mu.Unlock()

	if respond != nil {
		for _, l := range lines {
			if out := respond(l); out != "" {
				f.Feed(out)
			}
		}
	}
	return len(p), nil
}

// Read returns pending bytes, waiting up to the read timeout for some to arrive.
func (f *FakePort) Read(p []byte) (int, error) {
	if n, ok, err := f.take(p); ok || err != nil {
		return n, err
	}

	f.mu.Lock()
	timeout := f.timeout
	f.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.notify:
	case <-timer.C:
		return 0, nil
	}

	n, _, err := f.take(p)
	return n, err
}

func (f *FakePort) take(p []byte) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return 0, false, f.ReadError
	}
	if len(f.pending) == 0 {
		return 0, false, nil
	}
	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, true, nil
}

// Drain counts flushes.
func (f *FakePort) Drain() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
	return f.DrainError
}

// ResetBuffers discards pending input.
func (f *FakePort) ResetBuffers() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.pending = nil
	return nil
}

// SetReadTimeout records and applies d.
func (f *FakePort) SetReadTimeout(d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeout = d
	f.timeouts = append(f.timeouts, d)
	return nil
}

// Close marks the port as closed.
func (f *FakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Written returns the complete non-blank lines written so far, trimmed.
// Line discipline bytes such as the wake sequence only show up in Raw.
func (f *FakePort) Written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

// Raw returns every byte written so far.
func (f *FakePort) Raw() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.raw...)
}

// Resets returns how many times ResetBuffers was called.
func (f *FakePort) Resets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

// Drains returns how many times Drain was called.
func (f *FakePort) Drains() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drains
}

// Timeouts returns every read timeout that was set, in order.
func (f *FakePort) Timeouts() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.timeouts...)
}

// Closed reports whether Close was called.
func (f *FakePort) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeDialer hands out a single FakePort.
type FakeDialer struct {
	mu sync.Mutex

	// Listings are returned by successive ListPorts calls; the last one repeats.
	Listings [][]string

	// ListError, if set, will be returned by ListPorts.
	ListError error

	// OpenError, if set, will be returned by Open.
	OpenError error

	// Port is returned by Open.
	Port *FakePort

	lists  int
	opened []string
	bauds  []int
}

// NewFakeDialer creates a FakeDialer that lists one device and opens port.
func NewFakeDialer(port *FakePort) *FakeDialer {
	return &FakeDialer{
		Listings: [][]string{{"/dev/ttyFAKE0"}},
		Port:     port,
	}
}

// ListPorts returns the next scripted listing.
func (d *FakeDialer) ListPorts() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lists++
	if d.ListError != nil {
		return nil, d.ListError
	}
	if len(d.Listings) == 0 {
		return nil, nil
	}
	i := d.lists - 1
	if i >= len(d.Listings) {
		i = len(d.Listings) - 1
	}
	return d.Listings[i], nil
}

// Open records the request and returns Port.
func (d *FakeDialer) Open(path string, baud int, timeout time.Duration) (Port, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenError != nil {
		return nil, d.OpenError
	}
	d.opened = append(d.opened, path)
	d.bauds = append(d.bauds, baud)
	if err := d.Port.SetReadTimeout(timeout); err != nil {
		return nil, err
	}
	return d.Port, nil
}

// Lists returns how many times ListPorts was called.
func (d *FakeDialer) Lists() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lists
}

// Opened returns the paths and baud rates passed to Open.
func (d *FakeDialer) Opened() ([]string, []int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.opened...), append([]int(nil), d.bauds...)
}
