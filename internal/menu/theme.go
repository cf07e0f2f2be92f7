package menu

import "strings"

// Theme holds a restaurant's guest-page color choices as stored.
type Theme struct {
	PrimaryColor    string
	BackgroundColor string
	TextColor       string
	AccentColor     string
	FontFamily      string
}

const (
	defaultPrimary    = "#0f766e"
	defaultBackground = "#ffffff"
	defaultText       = "#1a202c"
	defaultAccent     = "#f59e0b"
	defaultFont       = "system-ui, sans-serif"
)

// StyleTokens computes the CSS custom properties for a theme. The result is a
// plain mapping consumed declaratively by the rendering layer; invalid color
// values fall back to the defaults rather than leaking into stylesheets.
func StyleTokens(t Theme) map[string]string {
	return map[string]string{
		"--ms-color-primary":    colorOrDefault(t.PrimaryColor, defaultPrimary),
		"--ms-color-background": colorOrDefault(t.BackgroundColor, defaultBackground),
		"--ms-color-text":       colorOrDefault(t.TextColor, defaultText),
		"--ms-color-accent":     colorOrDefault(t.AccentColor, defaultAccent),
		"--ms-font-family":      fontOrDefault(t.FontFamily),
	}
}

func colorOrDefault(v, fallback string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if isHexColor(v) {
		return v
	}
	return fallback
}

func isHexColor(v string) bool {
	if len(v) != 4 && len(v) != 7 {
		return false
	}
	if v[0] != '#' {
		return false
	}
	for i := 1; i < len(v); i++ {
		c := v[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') {
			continue
		}
		return false
	}
	return true
}

func fontOrDefault(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return defaultFont
	}
	// Font stacks are emitted into a style attribute; keep the charset tight.
	for i := 0; i < len(v); i++ {
		c := v[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			c == ' ' || c == ',' || c == '-' || c == '\'' {
			continue
		}
		return defaultFont
	}
	return v
}
