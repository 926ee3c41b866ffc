package extract

import (
	"strings"

	"github.com/sweeney/gcode-serial/internal/action"
)

// tempReport matches a full temperature report with targets:
//
//	T:<cur> /<target> B:<cur> /<target> <anything>
type tempReport struct{}

func (tempReport) match(line string) (ex, exTarget, bed, bedTarget string, ok bool) {
	for _, at := range indexes(line, "T:") {
		c := cursor{s: line, i: at + len("T:")}
		var good bool
		if ex, good = c.number(); !good || !c.space() || !c.lit("/") {
			continue
		}
		if exTarget, good = c.number(); !good || !c.space() || !c.lit("B:") {
			continue
		}
		if bed, good = c.number(); !good || !c.space() || !c.lit("/") {
			continue
		}
		if bedTarget, good = c.number(); !good || !c.space() {
			continue
		}
		return ex, exTarget, bed, bedTarget, true
	}
	return "", "", "", "", false
}

// heatingReport matches the shorter report printed while waiting on heaters:
//
//	T:<cur> <anything> B:<cur>
type heatingReport struct{}

func (heatingReport) match(line string) (ex, bed string, ok bool) {
	for _, at := range indexes(line, "T:") {
		c := cursor{s: line, i: at + len("T:")}
		var good bool
		if ex, good = c.number(); !good || !c.space() {
			continue
		}
		rest := line[c.i:]
		for _, b := range indexes(rest, "B:") {
			bc := cursor{s: rest, i: b + len("B:")}
			if bed, good = bc.number(); good {
				return ex, bed, true
			}
		}
	}
	return "", "", false
}

// sdProgress matches the progress line some firmwares print during SD prints:
//
//	NORMAL MODE: Percent done: 42; print time remaining in mins: 17; ...
type sdProgress struct{}

const (
	sdPrefix  = "NORMAL MODE: Percent done: "
	sdMinutes = "; print time remaining in mins: "
)

func (sdProgress) match(line string) (percent, mins string, ok bool) {
	for _, at := range indexes(line, sdPrefix) {
		c := cursor{s: line, i: at + len(sdPrefix)}
		var good bool
		if percent, good = c.digits(); !good || !c.lit(sdMinutes) {
			continue
		}
		if mins, good = c.digits(); !good || !c.lit("; ") {
			continue
		}
		return percent, mins, true
	}
	return "", "", false
}

// actionComment matches a host action embedded in a comment: "// action:<word>".
type actionComment struct{}

func (actionComment) match(line string) (word string, ok bool) {
	for _, at := range indexes(line, "//") {
		c := cursor{s: line, i: at + len("//")}
		if c.spaces() == 0 || !c.lit("action:") {
			continue
		}
		return c.word(), true
	}
	return "", false
}

// Response is everything the response extractor found in one line.
type Response struct {
	Telemetry []action.Telemetry

	// Printer is set when the line carried a recognised action comment.
	Printer action.PrinterActionKind

	// UnknownAction holds the word of an unrecognised action comment.
	UnknownAction string

	// DonePrinting is set when the firmware reports the end of an SD print.
	DonePrinting bool
}

// Response parses one complete firmware line.
func (e *Extractor) Response(line string) Response {
	var r Response

	if ex, exT, bed, bedT, ok := e.temps.match(line); ok {
		r.Telemetry = append(r.Telemetry,
			action.Temps(action.Temperature{
				Timestamp: e.now(),
				BedTemp:   parseFloat(bed, 0),
				ExTemp:    parseFloat(ex, 0),
			}),
			action.TargetExtruderTemp(toUint32(parseFloat(exT, 0))),
			action.TargetBedTemp(toUint32(parseFloat(bedT, 0))),
		)
	} else if ex, bed, ok := e.heating.match(line); ok {
		r.Telemetry = append(r.Telemetry, action.Temps(action.Temperature{
			Timestamp: e.now(),
			BedTemp:   parseFloat(bed, 0),
			ExTemp:    parseFloat(ex, 0),
		}))
	}

	if percent, mins, ok := e.sd.match(line); ok {
		r.Telemetry = append(r.Telemetry,
			action.PercentDone(parseUint(percent, 0)),
			action.MinsRemaining(parseUint(mins, 0)),
		)
	}

	if word, ok := e.action.match(line); ok {
		switch word {
		case "cancel":
			r.Printer = action.PrinterCancel
		case "pause":
			r.Printer = action.PrinterPause
		case "resume":
			r.Printer = action.PrinterResume
		default:
			r.UnknownAction = word
		}
	}

	r.DonePrinting = strings.Contains(line, "Done printing file")
	return r
}

// Outcome is the verdict on the lines collected for one exchange.
type Outcome int

const (
	// Pending means neither an acknowledgement nor an error has arrived yet.
	Pending Outcome = iota
	Success
	Failure
)

// Classify inspects every line collected so far. An acknowledgement wins over
// an error marker; a printer that just reset may answer "start" instead of "ok".
func Classify(lines []string) Outcome {
	for _, l := range lines {
		if strings.Contains(l, "ok") || strings.Contains(l, "start") {
			return Success
		}
	}
	for _, l := range lines {
		if strings.Contains(l, "error") || strings.Contains(l, "Error") || strings.Contains(l, "Err") {
			return Failure
		}
	}
	return Pending
}
