package emoji

import "strings"

const (
	minNameLen = 2
	maxNameLen = 32
)

// Symbol is a custom emoji known to the bot.
type Symbol struct {
	Name     string
	ID       string
	Animated bool
	Group    string // guild the emoji belongs to
}

// Tag returns the platform's inline form, <:name:id> or <a:name:id>.
func (s Symbol) Tag() string {
	if s.Animated {
		return "<a:" + s.Name + ":" + s.ID + ">"
	}
	return "<:" + s.Name + ":" + s.ID + ">"
}

// Normalize returns the lookup key for an emoji name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidName reports whether name is 2-32 characters of [A-Za-z0-9_].
func ValidName(name string) bool {
	if len(name) < minNameLen || len(name) > maxNameLen {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isNameByte(name[i]) {
			return false
		}
	}
	return true
}

func isNameByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
