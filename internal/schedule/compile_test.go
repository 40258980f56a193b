package schedule

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"testing"
)

func TestNormalizeTimeClockIdentity(t *testing.T) {
	t.Parallel()
	for _, v := range []string{"0:00", "9:05", "09:00", "18:30", "23:59"} {
		if got := NormalizeTime(v); got != v {
			t.Fatalf("NormalizeTime(%q) = %q, want identity", v, got)
		}
	}
}

func TestNormalizeTimeFractionalDay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want string
	}{
		{"0", "00:00"},
		{"0.5", "12:00"},
		{"0.375", "09:00"},
		{"0.77083333", "18:30"},
	}
	for _, tt := range tests {
		if got := NormalizeTime(tt.raw); got != tt.want {
			t.Fatalf("NormalizeTime(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}

	// fraction -> minutes arithmetic and idempotence across the range
	for f := 0.0; f < 1.0; f += 0.013 {
		raw := strconv.FormatFloat(f, 'f', -1, 64)
		got := NormalizeTime(raw)
		parts := strings.SplitN(got, ":", 2)
		if len(parts) != 2 {
			t.Fatalf("NormalizeTime(%q) = %q, not HH:MM", raw, got)
		}
		h, _ := strconv.Atoi(parts[0])
		m, _ := strconv.Atoi(parts[1])
		if want := int(math.Round(f * 1440)); h*60+m != want {
			t.Fatalf("NormalizeTime(%q) = %q (%d min), want %d min", raw, got, h*60+m, want)
		}
		if again := NormalizeTime(got); again != got {
			t.Fatalf("NormalizeTime not idempotent: %q -> %q", got, again)
		}
	}
}

func TestCompileDaily(t *testing.T) {
	t.Parallel()
	got := Compile(Record{Frequency: FreqDaily, Time: "09:00"})
	if len(got) != 1 || got[0] != "0 9 * * *" {
		t.Fatalf("Compile(daily 09:00) = %v", got)
	}
}

func TestCompileWeeklyMultipleTimes(t *testing.T) {
	t.Parallel()
	got := Compile(Record{Frequency: FreqWeekly, Day: "friday", Time: "18:30,21:00"})
	want := []string{"30 18 * * 5", "0 21 * * 5"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Compile(weekly friday) = %v, want %v", got, want)
	}
}

func TestCompileWeeklyDayDefaults(t *testing.T) {
	t.Parallel()
	tests := []struct {
		day  string
		want string
	}{
		{"", "0 9 * * 1"},
		{"Sunday", "0 9 * * 0"},
		{"saturday", "0 9 * * 6"},
		{"notaday", "0 9 * * 1"},
	}
	for _, tt := range tests {
		got := Compile(Record{Frequency: FreqWeekly, Day: tt.day, Time: "09:00"})
		if len(got) != 1 || got[0] != tt.want {
			t.Fatalf("Compile(weekly day=%q) = %v, want [%s]", tt.day, got, tt.want)
		}
	}
}

func TestCompileMonthly(t *testing.T) {
	t.Parallel()
	got := Compile(Record{Frequency: FreqMonthly, Day: "15", Time: "07:45"})
	if len(got) != 1 || got[0] != "45 7 15 * *" {
		t.Fatalf("Compile(monthly 15th) = %v", got)
	}
	got = Compile(Record{Frequency: FreqMonthly, Time: "07:45"})
	if len(got) != 1 || got[0] != "45 7 1 * *" {
		t.Fatalf("Compile(monthly default day) = %v", got)
	}
}

func TestCompileEvery(t *testing.T) {
	t.Parallel()
	got := Compile(Record{Frequency: FreqEvery, Interval: "3", Unit: "days", Time: "06:00"})
	if len(got) != 1 || got[0] != "0 6 */3 * *" {
		t.Fatalf("Compile(every 3 days) = %v", got)
	}

	// missing interval/unit default to every 1 day
	got = Compile(Record{Frequency: FreqEvery, Time: "06:00"})
	if len(got) != 1 || got[0] != "0 6 */1 * *" {
		t.Fatalf("Compile(every defaults) = %v", got)
	}

	// weeks degrade to weekly on the configured day
	got = Compile(Record{Frequency: FreqEvery, Interval: "2", Unit: "weeks", Day: "wednesday", Time: "06:00"})
	if len(got) != 1 || got[0] != "0 6 * * 3" {
		t.Fatalf("Compile(every 2 weeks) = %v", got)
	}
}

func TestCompileCustomPassthrough(t *testing.T) {
	t.Parallel()
	r := Record{Frequency: FreqCustom, CronExpression: "*/5 * * * *", Time: "09:00", Day: "friday"}
	got := Compile(r)
	if len(got) != 1 || got[0] != "*/5 * * * *" {
		t.Fatalf("Compile(custom) = %v", got)
	}

	if got := Compile(Record{Frequency: FreqCustom}); len(got) != 0 {
		t.Fatalf("Compile(custom, empty expression) = %v, want empty", got)
	}
}

func TestCompileUnknownFrequencyFallsBackToDaily(t *testing.T) {
	t.Parallel()
	got := Compile(Record{Frequency: "fortnightly", Time: "08:15"})
	if len(got) != 1 || got[0] != "15 8 * * *" {
		t.Fatalf("Compile(unknown frequency) = %v", got)
	}
}

func TestCompileSkipsJunkTimes(t *testing.T) {
	t.Parallel()
	got := Compile(Record{Frequency: FreqDaily, Time: "garbage,09:00, ,later"})
	if len(got) != 1 || got[0] != "0 9 * * *" {
		t.Fatalf("Compile(junk times) = %v", got)
	}
}

func TestCompileDuplicateTimesKept(t *testing.T) {
	t.Parallel()
	got := Compile(Record{Frequency: FreqDaily, Time: "09:00,09:00"})
	if len(got) != 2 {
		t.Fatalf("Compile(duplicate times) = %v, want two triggers", got)
	}
}

func TestCompileMixedClockAndFraction(t *testing.T) {
	t.Parallel()
	got := Compile(Record{Frequency: FreqDaily, Time: "0.375,18:30"})
	want := []string{"0 9 * * *", "30 18 * * *"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("Compile(mixed times) = %v, want %v", got, want)
	}
}
