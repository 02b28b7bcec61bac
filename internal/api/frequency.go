package api

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/signalsfoundry/linkplanner/core"
)

// ParseFrequency turns user-entered text such as "5" or " 2.4 " into GHz.
// Empty, non-numeric, non-finite and non-positive input is rejected with
// core.ErrInvalidFrequency.
func ParseFrequency(raw string) (float64, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, fmt.Errorf("%w: empty value", core.ErrInvalidFrequency)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", core.ErrInvalidFrequency, raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidFrequency, raw)
	}
	return f, nil
}

// frequencyField accepts either a JSON string ("5") or a bare JSON number
// (5) and keeps the raw text for ParseFrequency.
type frequencyField struct {
	raw string
	set bool
}

func (f *frequencyField) UnmarshalJSON(data []byte) error {
	f.set = true
	if string(data) == "null" {
		f.raw = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &f.raw)
	}
	f.raw = string(data)
	return nil
}

func (f frequencyField) parse() (float64, error) {
	if !f.set {
		return 0, fmt.Errorf("%w: frequency is required", core.ErrInvalidFrequency)
	}
	return ParseFrequency(f.raw)
}
