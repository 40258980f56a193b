// Package schedule holds the user-authored recurring trigger model and the
// pure translation from records to cron expressions.
package schedule

import (
	"strings"
	"time"
)

// Frequency values accepted in a record. Anything else degrades to daily.
const (
	FreqDaily   = "daily"
	FreqWeekly  = "weekly"
	FreqMonthly = "monthly"
	FreqEvery   = "every"
	FreqCustom  = "custom"
)

// Record is one recurring trigger definition as the operator wrote it.
//
// Field values that come from spreadsheet cells (Time, Day, Interval, Unit)
// stay strings; the compiler applies defaults and skips junk instead of
// failing the whole read.
type Record struct {
	ID             string
	Name           string
	Frequency      string
	Time           string // one or more per-day times, comma separated
	Command        string // "/name args..."
	Message        string // literal text; wins over Command when set
	TargetChannel  string
	TargetUser     string
	Active         bool
	CreatedAt      time.Time
	Day            string // weekday name (weekly) or day-of-month (monthly)
	Interval       string // "every" frequency only
	Unit           string // "days" or "weeks"
	CronExpression string // used verbatim for "custom"
}

// WantsMessage reports whether the record carries a literal message that
// takes priority over command execution.
func (r Record) WantsMessage() bool {
	return strings.TrimSpace(r.Message) != ""
}

// WantsCommand reports whether the record names a command to run.
func (r Record) WantsCommand() bool {
	return strings.TrimSpace(r.Command) != ""
}
