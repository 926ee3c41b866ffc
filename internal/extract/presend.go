package extract

import (
	"strings"

	"github.com/sweeney/gcode-serial/internal/action"
)

// targetTemp matches a heater target: "M1xx S<digits>".
type targetTemp struct{}

func (targetTemp) match(cmd string) (target string, ok bool) {
	for _, at := range indexes(cmd, "M1") {
		c := cursor{s: cmd, i: at + len("M1")}
		if c.i+2 > len(cmd) || !isDigit(cmd[c.i]) || !isDigit(cmd[c.i+1]) {
			continue
		}
		c.i += 2
		if !c.space() || !c.lit("S") {
			continue
		}
		if target, ok = c.digits(); ok {
			return target, true
		}
	}
	return "", false
}

// zMove matches a linear move carrying a Z word: "G1 ... Z<number>".
type zMove struct{}

func (zMove) match(cmd string) (z string, ok bool) {
	at := -1
	for i := 0; i+2 < len(cmd); i++ {
		if cmd[i] == 'G' && cmd[i+1] == '1' && isSpace(cmd[i+2]) {
			at = i + 3
			break
		}
	}
	if at < 0 {
		return "", false
	}
	rest := cmd[at:]
	for _, zi := range indexes(rest, "Z") {
		c := cursor{s: rest, i: zi + 1}
		if z, ok = c.number(); ok {
			return z, true
		}
	}
	return "", false
}

// fanSpeed matches "M106 ... S<number>". found reports an M106 with an S
// word; value may still be empty when no number follows it.
type fanSpeed struct{}

func (fanSpeed) match(cmd string) (value string, found bool) {
	for _, at := range indexes(cmd, "M106") {
		c := cursor{s: cmd, i: at + len("M106")}
		if !c.space() {
			continue
		}
		rest := cmd[c.i:]
		s := strings.LastIndexByte(rest, 'S')
		if s < 0 {
			continue
		}
		sc := cursor{s: rest, i: s + 1}
		value, _ = sc.number()
		return value, true
	}
	return "", false
}

// PreSend inspects a command about to be transmitted and returns the
// telemetry it implies. Zero targets and unparseable values yield nothing.
func (e *Extractor) PreSend(cmd string) []action.Telemetry {
	var out []action.Telemetry

	switch {
	case strings.Contains(cmd, "M104 S"):
		if t, ok := e.target.match(cmd); ok {
			if v := parseUint(t, 0); v != 0 {
				out = append(out, action.TargetExtruderTemp(v))
			}
		}
	case strings.Contains(cmd, "M140 S"):
		if t, ok := e.target.match(cmd); ok {
			if v := parseUint(t, 0); v != 0 {
				out = append(out, action.TargetBedTemp(v))
			}
		}
	}

	if z, ok := e.z.match(cmd); ok {
		if v := parseFloat(z, -1); v >= 0 {
			out = append(out, action.ZHeight(v))
		}
	}

	if s, ok := e.fan.match(cmd); ok {
		if v := parseFloat(s, -1); v >= 0 {
			out = append(out, action.FanSpeed(v/255))
		}
	}

	return out
}
