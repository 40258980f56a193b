package schedule

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Sunday-first weekday ordinals, shared by "weekly" and "every N weeks".
var weekdayNums = map[string]int{
	"sunday":    0,
	"monday":    1,
	"tuesday":   2,
	"wednesday": 3,
	"thursday":  4,
	"friday":    5,
	"saturday":  6,
}

// Compile translates a record into zero or more 5-field cron expressions.
//
// It is pure and never fails: unparseable time tokens are skipped, an
// unrecognized frequency degrades to daily, and a custom record without an
// expression compiles to nothing. Callers decide whether an empty result is
// worth a warning.
func Compile(r Record) []string {
	if r.Frequency == FreqCustom {
		expr := strings.TrimSpace(r.CronExpression)
		if expr == "" {
			return nil
		}
		return []string{expr}
	}

	var out []string
	for _, tok := range strings.Split(r.Time, ",") {
		tok = NormalizeTime(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		hour, minute, ok := splitClock(tok)
		if !ok {
			continue
		}

		switch r.Frequency {
		case FreqWeekly:
			out = append(out, fmt.Sprintf("%d %d * * %d", minute, hour, weekdayNum(r.Day)))
		case FreqMonthly:
			dom := 1
			if n, err := strconv.Atoi(strings.TrimSpace(r.Day)); err == nil {
				dom = n
			}
			out = append(out, fmt.Sprintf("%d %d %d * *", minute, hour, dom))
		case FreqEvery:
			interval := 1
			if n, err := strconv.Atoi(strings.TrimSpace(r.Interval)); err == nil && n >= 1 {
				interval = n
			}
			unit := strings.ToLower(strings.TrimSpace(r.Unit))
			if unit == "" {
				unit = "days"
			}
			switch unit {
			case "days":
				out = append(out, fmt.Sprintf("%d %d */%d * *", minute, hour, interval))
			case "weeks":
				// True "every N weeks" needs an anchor date the record does
				// not carry; approximated as weekly on the configured day.
				out = append(out, fmt.Sprintf("%d %d * * %d", minute, hour, weekdayNum(r.Day)))
			}
		default:
			// daily, and anything unrecognized
			out = append(out, fmt.Sprintf("%d %d * * *", minute, hour))
		}
	}
	return out
}

// NormalizeTime coerces a time cell to "HH:MM".
//
// Cells already shaped like H:MM or HH:MM pass through unchanged. Anything
// else is read as a fractional day (0.0..1.0, the spreadsheet time
// serialization), scaled to minutes and rounded. Tokens that are neither
// are returned as-is for the clock parser to reject.
func NormalizeTime(v string) string {
	if v == "" {
		return ""
	}
	if looksLikeClock(v) {
		return v
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return v
	}
	total := int(math.Round(f * 24 * 60))
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func looksLikeClock(v string) bool {
	i := strings.IndexByte(v, ':')
	if i < 1 || i > 2 || len(v)-i-1 != 2 {
		return false
	}
	for j, c := range v {
		if j == i {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func splitClock(v string) (hour, minute int, ok bool) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return h, m, true
}

func weekdayNum(day string) int {
	day = strings.ToLower(strings.TrimSpace(day))
	if day == "" {
		return weekdayNums["monday"]
	}
	if n, ok := weekdayNums[day]; ok {
		return n
	}
	return weekdayNums["monday"]
}
