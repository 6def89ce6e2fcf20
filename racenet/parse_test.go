package racenet

import (
	"math"
	"testing"
)

func TestParseTime(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1:02:03.450", 3723.45},
		{"02:03.450", 123.45},
		{"03.450", 3.45},
		{"0:00:00.000", 0},
		{"59.999", 59.999},
		{"15:00", 900},
		{"30:00", 1800},
	}
	for _, c := range cases {
		got, err := ParseTime(c.in)
		if err != nil {
			t.Fatalf("ParseTime(%q): %v", c.in, err)
		}
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("ParseTime(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseTimeInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "1:2:3:4", "1:xx.5"} {
		if _, err := ParseTime(in); err == nil {
			t.Errorf("ParseTime(%q): expected error", in)
		}
	}
}

func TestRoundMillis(t *testing.T) {
	if got := RoundMillis(150.0000001); got != 150.0 {
		t.Errorf("RoundMillis = %v, want 150", got)
	}
	if got := RoundMillis(123.45678); got != 123.457 {
		t.Errorf("RoundMillis = %v, want 123.457", got)
	}
}
