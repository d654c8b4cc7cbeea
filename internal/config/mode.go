package config

import "fmt"

// Mode selects the policy the resolver applies.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// ParseMode converts a string into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return m, nil
}

func (m Mode) Valid() bool {
	return m == ModeDevelopment || m == ModeProduction
}

func (m Mode) String() string {
	return string(m)
}
