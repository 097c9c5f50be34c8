package config

import (
	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/multierr"
)

var (
	ErrInvalidColor = errors.Base("invalid color")
	ErrInvalidGlob  = errors.Base("invalid glob")
	ErrInvalidLevel = errors.Base("invalid log level")
	ErrBracketCount = errors.Base("wrong number of bracket colors")
)

// Validate reports every problem in the config at once.
func (c *Config) Validate() error {
	var err error

	for _, glob := range c.Files {
		if !doublestar.ValidatePattern(glob) {
			err = multierr.Append(err, errors.WithDetails(ErrInvalidGlob, "glob", glob))
		}
	}

	if c.LogLevel != "" {
		if _, perr := zerolog.ParseLevel(c.LogLevel); perr != nil {
			err = multierr.Append(err, errors.WithDetails(ErrInvalidLevel, "level", c.LogLevel))
		}
	}

	if c.Theme != nil {
		if _, _, _, cerr := RGB(c.Theme.SingleTag); cerr != nil {
			err = multierr.Append(err, errors.WithDetails(ErrInvalidColor, "field", "single_tag", "color", c.Theme.SingleTag))
		}
		if len(c.Theme.Brackets) != BracketColors {
			err = multierr.Append(err, errors.WithDetails(ErrBracketCount, "want", BracketColors, "got", len(c.Theme.Brackets)))
		}
		for i, col := range c.Theme.Brackets {
			if _, _, _, cerr := RGB(col); cerr != nil {
				err = multierr.Append(err, errors.WithDetails(ErrInvalidColor, "field", "brackets", "index", i, "color", col))
			}
		}
	}

	return err
}
