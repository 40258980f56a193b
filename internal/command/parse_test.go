package command

import (
	"reflect"
	"testing"
)

func TestTokenizeQuotesAndEscapes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want []string
	}{
		{`a "b c" d`, []string{"a", "b c", "d"}},
		{`--name="morning run"`, []string{"--name=morning run"}},
		{`a\ b c`, []string{"a b", "c"}},
		{`'single quoted'`, []string{"single quoted"}},
		{"  ", nil},
	}
	for _, tc := range cases {
		if got := Tokenize(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	t.Parallel()
	pos, flags, bools := ParseFlags([]string{"add", "--name=run", "--time", "09:00", "--dm", "extra", "-v"})
	if !reflect.DeepEqual(pos, []string{"add", "extra"}) {
		t.Errorf("pos = %v", pos)
	}
	if flags["name"] != "run" || flags["time"] != "09:00" {
		t.Errorf("flags = %v", flags)
	}
	if !bools["dm"] || !bools["v"] {
		t.Errorf("bools = %v", bools)
	}
}
