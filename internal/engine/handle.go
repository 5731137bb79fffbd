package engine

import "strings"

// NormalizeHandle canonicalizes a display name: whitespace is trimmed, an
// empty result means "not provided", and a single token without the @ marker
// gets it prefixed. Anything containing spaces is kept verbatim (a plain
// name, not a handle).
func NormalizeHandle(text string) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return ""
	}
	if strings.HasPrefix(t, "@") {
		return t
	}
	if strings.ContainsAny(t, " \t") {
		return t
	}
	return "@" + t
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
