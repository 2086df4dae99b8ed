package notify

import (
	"fmt"
	"slices"
)

// Locale is a language code such as "en" or "ar".
type Locale string

// LocaleSet is the finite set of locales a notification may carry text for,
// with one designated default.
type LocaleSet struct {
	supported []Locale
	def       Locale
}

// NewLocaleSet validates that the default is one of the supported locales.
func NewLocaleSet(supported []string, def string) (*LocaleSet, error) {
	if len(supported) == 0 {
		return nil, fmt.Errorf("at least one supported locale is required")
	}
	set := &LocaleSet{def: Locale(def)}
	for _, l := range supported {
		if l == "" || slices.Contains(set.supported, Locale(l)) {
			continue
		}
		set.supported = append(set.supported, Locale(l))
	}
	if !set.Contains(set.def) {
		return nil, fmt.Errorf("default locale %q is not in the supported set %v", def, supported)
	}
	return set, nil
}

// MustLocaleSet is NewLocaleSet for static configuration; it panics on error.
func MustLocaleSet(supported []string, def string) *LocaleSet {
	set, err := NewLocaleSet(supported, def)
	if err != nil {
		panic(err)
	}
	return set
}

// Contains reports whether l is supported.
func (s *LocaleSet) Contains(l Locale) bool {
	return slices.Contains(s.supported, l)
}

// Default returns the designated default locale.
func (s *LocaleSet) Default() Locale {
	return s.def
}

// All returns the supported locales in configuration order.
func (s *LocaleSet) All() []Locale {
	return slices.Clone(s.supported)
}

// Resolve maps an empty locale to the default and rejects unsupported ones.
func (s *LocaleSet) Resolve(l Locale) (Locale, error) {
	if l == "" {
		l = s.def
	}
	if !s.Contains(l) {
		return "", &InvalidLocaleError{Locale: l}
	}
	return l, nil
}
