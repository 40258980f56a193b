package schedule

import (
	"fmt"
	"strings"
	"time"
)

// NumRowFields is the fixed width of a persisted schedule row:
// id, name, frequency, time, command, message, target_channel_id,
// target_user_id, is_active, created_at, day, interval, unit, cron_expression.
const NumRowFields = 14

// RowHeader is the header row a spreadsheet-backed store writes and strips.
func RowHeader() []string {
	return []string{
		"id", "name", "frequency", "time", "command", "message",
		"target_channel_id", "target_user_id", "is_active", "created_at",
		"day", "interval", "unit", "cron_expression",
	}
}

// IsHeaderRow recognizes a header row by its first cell.
func IsHeaderRow(row []string) bool {
	return len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "id")
}

// Row serializes the record into the fixed 14-field layout.
// is_active uses the spreadsheet-style "TRUE"/"FALSE" literals.
func (r Record) Row() []string {
	active := "FALSE"
	if r.Active {
		active = "TRUE"
	}
	created := ""
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		r.ID, r.Name, r.Frequency, r.Time, r.Command, r.Message,
		r.TargetChannel, r.TargetUser, active, created,
		r.Day, r.Interval, r.Unit, r.CronExpression,
	}
}

// RecordFromRow decodes one persisted row. Rows shorter than the full width
// are padded with empty cells so trailing-column omissions (common when rows
// are edited by hand in a sheet) still load.
func RecordFromRow(row []string) (Record, error) {
	if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
		return Record{}, fmt.Errorf("schedule row has no id")
	}
	cells := make([]string, NumRowFields)
	for i := range cells {
		if i < len(row) {
			cells[i] = strings.TrimSpace(row[i])
		}
	}

	var created time.Time
	if cells[9] != "" {
		t, err := time.Parse(time.RFC3339, cells[9])
		if err != nil {
			return Record{}, fmt.Errorf("schedule row %s: bad created_at %q: %w", cells[0], cells[9], err)
		}
		created = t
	}

	return Record{
		ID:             cells[0],
		Name:           cells[1],
		Frequency:      strings.ToLower(cells[2]),
		Time:           cells[3],
		Command:        cells[4],
		Message:        cells[5],
		TargetChannel:  cells[6],
		TargetUser:     cells[7],
		Active:         strings.EqualFold(cells[8], "TRUE"),
		CreatedAt:      created,
		Day:            cells[10],
		Interval:       cells[11],
		Unit:           cells[12],
		CronExpression: cells[13],
	}, nil
}
