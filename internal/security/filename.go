// Package security holds helpers for handling untrusted names.
package security

import "strings"

// maxFilenameLen bounds sanitized names so headers and paths stay short.
const maxFilenameLen = 128

// SanitizeFilename maps an uploaded or user-supplied name onto
// [A-Za-z0-9._-]. Runs of other characters become one underscore, and
// leading or trailing dots and underscores are dropped. An empty result
// becomes "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	pendingUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		if isFilenameRune(r) {
			if pendingUnderscore && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingUnderscore = false
			b.WriteRune(r)
			continue
		}
		pendingUnderscore = true
	}
	out := strings.Trim(b.String(), "._")
	if len(out) > maxFilenameLen {
		out = out[:maxFilenameLen]
	}
	if out == "" {
		return "unknown"
	}
	return out
}

func isFilenameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.' || r == '_' || r == '-':
		return true
	}
	return false
}

// ContentDisposition returns an inline Content-Disposition value naming
// the sanitized file.
func ContentDisposition(name string) string {
	return `inline; filename="` + SanitizeFilename(name) + `"`
}
