package textutil

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxDirNameLength bounds sanitized directory names, in runes.
	MaxDirNameLength = 80
	fallbackDirName  = "unnamed"
)

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed. The result is trimmed of leading/trailing whitespace.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(fileNameReplacer.Replace(name))
}

// NormalizeName trims and NFC-normalizes a user supplied display name.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// SanitizeDirName converts a display name into a directory name. Unsafe
// characters and control characters become underscores, leading/trailing
// dots and spaces are dropped, and the result is capped at MaxDirNameLength
// runes. Empty results fall back to "unnamed".
func SanitizeDirName(name string) string {
	name = NormalizeName(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r), unicode.IsControl(r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), ". ")
	if utf8.RuneCountInString(out) > MaxDirNameLength {
		out = strings.TrimRight(string([]rune(out)[:MaxDirNameLength]), ". ")
	}
	if out == "" {
		return fallbackDirName
	}
	return out
}

// DisplayNameFromPath derives a default display name from a video path.
func DisplayNameFromPath(path string) string {
	base := filepath.Base(strings.TrimSpace(path))
	name := NormalizeName(strings.TrimSuffix(base, filepath.Ext(base)))
	if name == "" || name == "." {
		return fallbackDirName
	}
	return name
}

// Humanize turns a snake_case identifier into a title-cased label.
func Humanize(value string) string {
	value = strings.TrimSpace(strings.ReplaceAll(value, "_", " "))
	if value == "" {
		return ""
	}
	return cases.Title(language.Und).String(value)
}
