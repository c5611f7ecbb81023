package config

import (
	"testing"
	"time"
)

func TestParseHumanSize(t *testing.T) {
	cases := map[string]int64{
		"0":     0,
		"":      0,
		"1024":  1024,
		"1K":    1024,
		"500M":  500 * 1024 * 1024,
		"10G":   10 * 1024 * 1024 * 1024,
		"2T":    2 << 40,
		"10GiB": 10 * 1024 * 1024 * 1024,
	}
	for in, want := range cases {
		got, err := ParseHumanSize(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got != want {
			t.Fatalf("%q: got %d want %d", in, got, want)
		}
	}
	if _, err := ParseHumanSize("ten"); err == nil {
		t.Fatalf("expected error for garbage size")
	}
}

func TestParseHumanTime(t *testing.T) {
	cases := map[string]time.Duration{
		"30":    30 * time.Second,
		"5m":    5 * time.Minute,
		"1h30m": 90 * time.Minute,
		"":      0,
	}
	for in, want := range cases {
		got, err := ParseHumanTime(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got != want {
			t.Fatalf("%q: got %v want %v", in, got, want)
		}
	}
	for _, bad := range []string{"soon", "-5", "-1m"} {
		if _, err := ParseHumanTime(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

func TestHumanSize(t *testing.T) {
	if got := HumanSize(5 * 1024 * 1024); got != "5.0 MiB" {
		t.Fatalf("got %q", got)
	}
}
