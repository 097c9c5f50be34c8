package config

import (
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// Theme holds hex colors for the token legend: one for plain tags and one
// per bracket depth.
type Theme struct {
	SingleTag string   `json:"single_tag,omitempty" yaml:"single_tag,omitempty" hcl:"single_tag,optional"`
	Brackets  []string `json:"brackets,omitempty" yaml:"brackets,omitempty" hcl:"brackets,optional"`
}

// BracketColors is the number of bracket depths that get their own color.
const BracketColors = 5

func DefaultTheme() *Theme {
	return &Theme{
		SingleTag: "fec89a",
		Brackets:  []string{"00ff00", "e36414", "4361ee", "fff3b0", "8338ec"},
	}
}

// ColorFor returns the hex color of a legend index: 0 for plain tags,
// 1 through 5 for bracket depths. Out of range indexes get the plain color.
func (t *Theme) ColorFor(index int) string {
	if index >= 1 && index <= len(t.Brackets) {
		return t.Brackets[index-1]
	}
	return t.SingleTag
}

// RGB parses a hex color with or without a leading '#'.
func RGB(hex string) (r, g, b int, err error) {
	h := strings.TrimPrefix(hex, "#")
	if len(h) != 6 {
		return 0, 0, 0, errors.Errorf("color %q: want six hex digits", hex)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return 0, 0, 0, errors.Errorf("color %q: %w", hex, err)
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), nil
}
