package xmlcodec

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseISO8601Duration parses the PnYnMnDTnHnMnS subset of ISO 8601
// durations used throughout KSR/SKR signature policy fields (e.g.
// "P10D", "P79DT12H"). No pack example imports a third-party ISO 8601
// duration library (see DESIGN.md); this hand-rolled parser is
// deliberately narrow — years are treated as 365 days and months as 30
// days, which is exact enough for the day/hour-scale durations this
// format actually carries (bundle intervals, signature validity,
// safety margins) and avoids pulling in calendar-aware date math this
// domain never needs.
func ParseISO8601Duration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if s[0] != 'P' {
		return 0, fmt.Errorf("duration %q does not start with P", s)
	}
	s = s[1:]

	datePart, timePart, hasTime := strings.Cut(s, "T")
	if !hasTime {
		datePart = s
		timePart = ""
	}

	var total time.Duration
	var err error
	total, err = accumulateUnits(datePart, map[byte]time.Duration{
		'Y': 365 * 24 * time.Hour,
		'M': 30 * 24 * time.Hour,
		'D': 24 * time.Hour,
		'W': 7 * 24 * time.Hour,
	})
	if err != nil {
		return 0, fmt.Errorf("duration %q: date part: %w", s, err)
	}

	if timePart != "" {
		t, err := accumulateUnits(timePart, map[byte]time.Duration{
			'H': time.Hour,
			'M': time.Minute,
			'S': time.Second,
		})
		if err != nil {
			return 0, fmt.Errorf("duration %q: time part: %w", s, err)
		}
		total += t
	}

	return total, nil
}

func accumulateUnits(s string, units map[byte]time.Duration) (time.Duration, error) {
	var total time.Duration
	var numBuf strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' {
			numBuf.WriteByte(c)
			continue
		}
		unit, ok := units[c]
		if !ok {
			return 0, fmt.Errorf("unexpected unit designator %q", c)
		}
		if numBuf.Len() == 0 {
			return 0, fmt.Errorf("unit designator %q with no preceding number", c)
		}
		n, err := strconv.Atoi(numBuf.String())
		if err != nil {
			return 0, err
		}
		total += time.Duration(n) * unit
		numBuf.Reset()
	}
	if numBuf.Len() != 0 {
		return 0, fmt.Errorf("trailing digits %q with no unit designator", numBuf.String())
	}
	return total, nil
}

// FormatISO8601Duration renders d using the coarsest unit that divides
// it evenly (days when possible, falling back to hours/minutes/seconds),
// so emitted documents are stable and diff-friendly across ceremonies.
func FormatISO8601Duration(d time.Duration) string {
	if d == 0 {
		return "PT0S"
	}
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("P%dD", d/(24*time.Hour))
	}
	var b strings.Builder
	b.WriteString("PT")
	if d%time.Hour == 0 {
		b.WriteString(fmt.Sprintf("%dH", d/time.Hour))
	} else if d%time.Minute == 0 {
		b.WriteString(fmt.Sprintf("%dM", d/time.Minute))
	} else {
		b.WriteString(fmt.Sprintf("%dS", int64(d/time.Second)))
	}
	return b.String()
}
