package core

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultFilename is used when the server does not name the file
const DefaultFilename = "downloaded_video.mp4"

// maxNameBytes bounds the base name, leaving room for an extension and a
// " (n)" suffix within the usual 255 byte limit.
const maxNameBytes = 200

var multiSpace = regexp.MustCompile(`\s+`)

// SanitizeFilename keeps letters, digits, spaces, dashes and underscores of the
// base name and preserves a short extension.
func SanitizeFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if filename == "." || filename == "/" {
		filename = ""
	}

	ext := ""
	if lastDot := strings.LastIndex(filename, "."); lastDot > 0 {
		potentialExt := filename[lastDot:]
		if !strings.Contains(potentialExt, " ") && len(potentialExt) <= 6 {
			ext = strings.ToLower(potentialExt)
			filename = filename[:lastDot]
		}
	}

	var result strings.Builder
	for _, r := range filename {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	filename = multiSpace.ReplaceAllString(result.String(), " ")
	filename = strings.TrimSpace(filename)
	filename = sanitizeWindowsReservedNames(filename)

	if len(filename) > maxNameBytes {
		cut := maxNameBytes
		for cut > 0 && !utf8.RuneStart(filename[cut]) {
			cut--
		}
		filename = strings.TrimRight(filename[:cut], " ")
	}

	if filename == "" {
		filename = "download"
	}

	return filename + ext
}

// UniquePath returns path, or the first "name (n).ext" variant of it that
// does not exist yet.
func UniquePath(path string) string {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// FilenameFromDisposition extracts the attachment filename from a
// Content-Disposition header, falling back to DefaultFilename.
func FilenameFromDisposition(header string) string {
	if header == "" {
		return DefaultFilename
	}

	name := ""
	if _, params, err := mime.ParseMediaType(header); err == nil {
		name = params["filename"]
	} else if idx := strings.Index(header, "filename="); idx != -1 {
		// Unquoted names with spaces are rejected by mime; take the raw value.
		name = strings.Trim(header[idx+len("filename="):], `"' ;`)
	}

	if strings.TrimSpace(name) == "" {
		return DefaultFilename
	}
	return SanitizeFilename(name)
}

// sanitizeWindowsReservedNames handles Windows reserved filenames
func sanitizeWindowsReservedNames(filename string) string {
	windowsReservedNames := []string{
		"CON", "PRN", "AUX", "NUL",
		"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
		"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9",
	}

	for _, reserved := range windowsReservedNames {
		if strings.EqualFold(filename, reserved) {
			return filename + " file"
		}
	}

	return filename
}
