package policy

import "fmt"

// Level is the ordered risk classification of a verdict
type Level int

const (
	LevelSafe Level = iota
	LevelWarn
	LevelDanger
	LevelBlocklisted
)

var levelNames = map[Level]string{
	LevelSafe:        "safe",
	LevelWarn:        "warn",
	LevelDanger:      "danger",
	LevelBlocklisted: "blocklisted",
}

// String returns the lowercase level name
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Style returns the presentation class for the level
func (l Level) Style() string {
	if l == LevelBlocklisted {
		return "blocklist"
	}
	return l.String()
}

// MarshalText encodes the level by name
func (l Level) MarshalText() ([]byte, error) {
	if _, ok := levelNames[l]; !ok {
		return nil, fmt.Errorf("unknown level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name
func (l *Level) UnmarshalText(text []byte) error {
	for level, name := range levelNames {
		if name == string(text) {
			*l = level
			return nil
		}
	}
	return fmt.Errorf("unknown level %q", text)
}
