// Package request validates raw user input and turns it into a check request.
package request

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/antiplagiat/textcheck/internal/config"
	"github.com/antiplagiat/textcheck/internal/models"
)

const (
	// MinChars is the smallest trimmed text, in characters, the backend will analyse.
	MinChars = 100
	// MaxChars is the largest text the backend accepts.
	MaxChars = 500000
)

// Reason explains why input was rejected.
type Reason string

const (
	ReasonTooShort    Reason = "too_short"
	ReasonTooLong     Reason = "too_long"
	ReasonInvalidMode Reason = "invalid_mode"
	ReasonInvalidLang Reason = "invalid_lang"
)

// ValidationError is returned by Build when input cannot be submitted.
type ValidationError struct {
	Reason    Reason
	Length    int // trimmed length in characters
	Shortfall int // characters missing for ReasonTooShort
	Value     string
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonTooShort:
		return fmt.Sprintf("text too short: %d characters, need %d more", e.Length, e.Shortfall)
	case ReasonTooLong:
		return fmt.Sprintf("text too long: %d characters, limit is %d", e.Length, MaxChars)
	case ReasonInvalidMode:
		return fmt.Sprintf("unsupported mode: %q", e.Value)
	case ReasonInvalidLang:
		return fmt.Sprintf("unsupported lang: %q", e.Value)
	}
	return string(e.Reason)
}

// Options overrides the builder defaults. Nil fields keep the default.
type Options struct {
	Mode                *models.Mode
	Lang                *models.Lang
	ExcludeQuotes       *bool
	ExcludeBibliography *bool
}

// Settings is a fully resolved set of check options.
type Settings struct {
	Mode                models.Mode
	Lang                models.Lang
	ExcludeQuotes       bool
	ExcludeBibliography bool
}

// Defaults returns the built-in default settings.
func Defaults() Settings {
	return Settings{
		Mode:                models.ModeFast,
		Lang:                models.LangAuto,
		ExcludeQuotes:       true,
		ExcludeBibliography: false,
	}
}

// SettingsFromConfig returns the defaults declared in configuration.
func SettingsFromConfig(cfg config.RequestConfig) Settings {
	return Settings{
		Mode:                models.Mode(cfg.Mode),
		Lang:                models.Lang(cfg.Lang),
		ExcludeQuotes:       cfg.ExcludeQuotes,
		ExcludeBibliography: cfg.ExcludeBibliography,
	}
}

// Builder builds check requests against a fixed set of defaults.
type Builder struct {
	defaults Settings
}

// NewBuilder creates a builder with the given defaults.
func NewBuilder(defaults Settings) *Builder {
	return &Builder{defaults: defaults}
}

// Defaults returns the settings applied when Options leaves a field unset.
func (b *Builder) Defaults() Settings {
	return b.defaults
}

// Build trims rawText, checks its length and applies options over the defaults.
func (b *Builder) Build(rawText string, opts Options) (*models.CheckRequest, error) {
	text := strings.TrimSpace(rawText)
	length := utf8.RuneCountInString(text)

	if length < MinChars {
		return nil, &ValidationError{Reason: ReasonTooShort, Length: length, Shortfall: MinChars - length}
	}
	if length > MaxChars {
		return nil, &ValidationError{Reason: ReasonTooLong, Length: length}
	}

	s := b.defaults
	if opts.Mode != nil {
		s.Mode = *opts.Mode
	}
	if opts.Lang != nil {
		s.Lang = *opts.Lang
	}
	if opts.ExcludeQuotes != nil {
		s.ExcludeQuotes = *opts.ExcludeQuotes
	}
	if opts.ExcludeBibliography != nil {
		s.ExcludeBibliography = *opts.ExcludeBibliography
	}

	if !s.Mode.Valid() {
		return nil, &ValidationError{Reason: ReasonInvalidMode, Length: length, Value: string(s.Mode)}
	}
	if !s.Lang.Valid() {
		return nil, &ValidationError{Reason: ReasonInvalidLang, Length: length, Value: string(s.Lang)}
	}

	return &models.CheckRequest{
		Text:                text,
		Mode:                s.Mode,
		Lang:                s.Lang,
		ExcludeQuotes:       s.ExcludeQuotes,
		ExcludeBibliography: s.ExcludeBibliography,
	}, nil
}

// CountWords returns the number of whitespace-separated words in text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// CountChars returns the number of characters in the trimmed text.
func CountChars(text string) int {
	return utf8.RuneCountInString(strings.TrimSpace(text))
}
