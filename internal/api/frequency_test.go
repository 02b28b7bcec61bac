package api

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/linkplanner/core"
)

func TestParseFrequency(t *testing.T) {
	valid := map[string]float64{
		"5":      5,
		" 2.4 ":  2.4,
		"0.9":    0.9,
		"6e1":    60,
		"\t24\n": 24,
	}
	for raw, want := range valid {
		got, err := ParseFrequency(raw)
		if err != nil {
			t.Fatalf("ParseFrequency(%q) error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseFrequency(%q) = %v, want %v", raw, got, want)
		}
	}

	invalid := []string{"", "   ", "abc", "5GHz", "0", "-2.4", "NaN", "Inf", "-Inf", "1e400"}
	for _, raw := range invalid {
		if _, err := ParseFrequency(raw); !errors.Is(err, core.ErrInvalidFrequency) {
			t.Fatalf("ParseFrequency(%q) error = %v, want ErrInvalidFrequency", raw, err)
		}
	}
}
