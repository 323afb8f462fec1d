package extract

import (
	"strings"
)

const fallbackFilename = "attachment"

// SanitizeFilename makes a declared attachment filename safe to use inside
// a date-bucket directory. Path separators, control characters and shell
// glob characters become underscores, leading dots are stripped so no entry
// can traverse out of its bucket or hide itself. The original name is
// preserved as far as possible.
func SanitizeFilename(filename string) string {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return fallbackFilename
	}

	var b strings.Builder
	for _, r := range filename {
		switch {
		case r == '/' || r == '\\':
			b.WriteRune('_')
		case r < 0x20 || r == 0x7f:
			b.WriteRune('_')
		case strings.ContainsRune(`<>:"|?*`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	cleaned := strings.TrimSpace(b.String())
	cleaned = strings.TrimLeft(cleaned, ".")
	if cleaned == "" {
		return fallbackFilename
	}
	return cleaned
}
