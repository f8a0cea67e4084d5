package harvest

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ClockEngine infers absolute timestamps for replayed irssi log lines. The
// log only records wall-clock time now and then, so each file carries a
// running clock that the recognised marker lines move.
type ClockEngine struct {
	hourMin   *regexp.Regexp
	dayChange *regexp.Regexp
	logOpened *regexp.Regexp
	loc       *time.Location
}

// NewClockEngine returns an engine that interprets log times in loc.
func NewClockEngine(loc *time.Location) *ClockEngine {
	if loc == nil {
		loc = time.Local
	}
	return &ClockEngine{
		// "13:37 <@sjm> 1337"
		hourMin: regexp.MustCompile(`^(\d\d):(\d\d)\s`),
		// "--- Day changed Fri Aug 13 2021"
		dayChange: regexp.MustCompile(`^--- Day changed \w+ (\w+) (\d+) (\d+)`),
		// "--- Log opened Sun Aug 08 13:37:42 2021"
		logOpened: regexp.MustCompile(`^--- Log opened \w+ (\w+) (\d+) (\d+):(\d+):(\d+) (\d+)`),
		loc:       loc,
	}
}

// Start is the clock value for a file discovered at found, before any
// marker has been seen.
func (e *ClockEngine) Start(found time.Time) time.Time {
	return found.In(e.loc)
}

// Observe returns the clock after line. Patterns are tried in order
// hour:minute, day change, log opened; the first that matches decides,
// and a match with out-of-range fields leaves the clock as it was.
func (e *ClockEngine) Observe(current time.Time, line string) time.Time {
	if m := e.hourMin.FindStringSubmatch(line); m != nil {
		if t, ok := e.atHourMin(current, m[1], m[2]); ok {
			return t
		}
		return current
	}

	if m := e.dayChange.FindStringSubmatch(line); m != nil {
		if t, ok := e.date(m[1], m[2], m[3], "0", "0", "0"); ok {
			return t
		}
		return current
	}

	if m := e.logOpened.FindStringSubmatch(line); m != nil {
		if t, ok := e.date(m[1], m[2], m[6], m[3], m[4], m[5]); ok {
			return t
		}
		return current
	}

	return current
}

func (e *ClockEngine) atHourMin(current time.Time, hh, mm string) (time.Time, bool) {
	hour, err1 := strconv.Atoi(hh)
	minute, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	y, mo, d := current.In(e.loc).Date()
	return time.Date(y, mo, d, hour, minute, 0, 0, e.loc), true
}

func (e *ClockEngine) date(mon, day, year, hh, mm, ss string) (time.Time, bool) {
	month, ok := parseMonth(mon)
	if !ok {
		return time.Time{}, false
	}

	var n [5]int
	for i, s := range []string{day, year, hh, mm, ss} {
		v, err := strconv.Atoi(s)
		if err != nil {
			return time.Time{}, false
		}
		n[i] = v
	}
	d, y, hour, minute, sec := n[0], n[1], n[2], n[3], n[4]
	if hour > 23 || minute > 59 || sec > 59 {
		return time.Time{}, false
	}

	t := time.Date(y, month, d, hour, minute, sec, 0, e.loc)
	// time.Date normalises Feb 30 into March; such dates are rejected.
	if t.Year() != y || t.Month() != month || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// parseMonth accepts English month names, abbreviated or not, and numbers.
func parseMonth(s string) (time.Month, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 12 {
			return 0, false
		}
		return time.Month(n), true
	}

	if len(s) < 3 {
		return 0, false
	}
	for m := time.January; m <= time.December; m++ {
		name := m.String()
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:3]) {
			return m, true
		}
	}
	return 0, false
}
