// Package extract turns G-code traffic into telemetry.
//
// PreSend inspects commands just before they go out on the wire; Response
// inspects each complete line the firmware sends back. Neither keeps state
// between calls and neither touches the transport: they return what they
// found and the protocol engine decides what to publish.
package extract

import "time"

// Extractor holds the line matchers. It is safe for concurrent use.
type Extractor struct {
	now func() time.Time

	temps   tempReport
	heating heatingReport
	sd      sdProgress
	action  actionComment

	target targetTemp
	z      zMove
	fan    fanSpeed
}

// New builds an Extractor stamping temperature reports with time.Now.
func New() *Extractor {
	return NewWithClock(time.Now)
}

// NewWithClock builds an Extractor with an injectable clock.
func NewWithClock(now func() time.Time) *Extractor {
	return &Extractor{now: now}
}
