package path

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

var (
	ErrEmptyName   = errors.New("file name cannot be empty")
	ErrInvalidName = errors.New("file name is invalid")
)

// ValidateFileName rejects names that cannot be turned into a storage key.
func ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if strings.Contains(name, "\x00") {
		return ErrInvalidName
	}
	base := filepath.Base(filepath.ToSlash(name))
	if strings.Trim(base, ".") == "" {
		return ErrInvalidName
	}
	return nil
}

// SanitizeBase keeps letters, digits, '-', '_' and '.' of the final path
// element and replaces everything else with '_'.
func SanitizeBase(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	clean := strings.TrimLeft(b.String(), ".")
	if clean == "" {
		clean = "file"
	}
	return clean
}

// TimestampedName inserts _<unix millis> between the base name and the extension:
//
//	"CV final.pdf" at 1700000000000 -> "CV_final_1700000000000.pdf"
func TimestampedName(original string, ts time.Time) string {
	clean := SanitizeBase(original)
	ext := strings.ToLower(filepath.Ext(clean))
	base := strings.TrimSuffix(clean, filepath.Ext(clean))
	if base == "" {
		base = "file"
	}
	return fmt.Sprintf("%s_%d%s", base, ts.UnixMilli(), ext)
}

// ObjectKey places name under folder.
func ObjectKey(folder, name string) string {
	return strings.Trim(folder, "/") + "/" + name
}
