// Package fileutil holds small file, path and formatting helpers.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultDirPermissions = 0o750
	dot                   = "."
)

// Data size constants.
const (
	kilobyte = 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

// Time and size formatting constants.
const (
	secondsInMinute = 60
	secondsInHour   = 3600
	formatSeconds   = "%.1fs"
	formatMinutes   = "%dm %.1fs"
	formatHours     = "%dh %dm"
	formatGB        = "%.1f GB"
	formatMB        = "%.1f MB"
	formatKB        = "%.1f KB"
	formatBytes     = "%d B"
)

const (
	extAAC  = ".aac"
	extFLAC = ".flac"
	extM4A  = ".m4a"
	extMP3  = ".mp3"
	extOGG  = ".ogg"
	extWAV  = ".wav"
)

const (
	errFmtFailedToCreateDir = "failed to create directory %s: %w"
	errFmtUnsafeName        = "%w: %q"
)

// ErrUnsafeName is returned for names that would escape their directory.
var ErrUnsafeName = errors.New("unsafe file name")

var audioContentTypes = map[string]string{
	extWAV:  "audio/wav",
	extMP3:  "audio/mpeg",
	extFLAC: "audio/flac",
	extOGG:  "audio/ogg",
	extM4A:  "audio/mp4",
	extAAC:  "audio/aac",
}

// EnsureDir creates path and its parents when missing.
func EnsureDir(path string) error {
	err := os.MkdirAll(path, defaultDirPermissions)
	if err != nil {
		return fmt.Errorf(errFmtFailedToCreateDir, path, err)
	}

	return nil
}

// SafeName returns name when it is a plain file name: not empty, not a dot
// entry, and free of path separators.
func SafeName(name string) (string, error) {
	if name == "" || name == dot || name == ".." ||
		strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return "", fmt.Errorf(errFmtUnsafeName, ErrUnsafeName, name)
	}

	return name, nil
}

// IsAudioFile reports whether filename has a common audio extension.
func IsAudioFile(filename string) bool {
	_, ok := audioContentTypes[strings.ToLower(filepath.Ext(filename))]

	return ok
}

// AudioContentType returns the MIME type for an audio file name, or
// application/octet-stream for unknown extensions.
func AudioContentType(filename string) string {
	contentType, ok := audioContentTypes[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return "application/octet-stream"
	}

	return contentType
}

// FormatDuration formats seconds as "45.2s", "5m 30.5s" or "1h 15m".
func FormatDuration(seconds float64) string {
	if seconds < secondsInMinute {
		return fmt.Sprintf(formatSeconds, seconds)
	}

	if seconds < secondsInHour {
		minutes := int(seconds / secondsInMinute)

		return fmt.Sprintf(formatMinutes, minutes, seconds-float64(minutes*secondsInMinute))
	}

	hours := int(seconds / secondsInHour)
	remainingMinutes := int((seconds - float64(hours*secondsInHour)) / secondsInMinute)

	return fmt.Sprintf(formatHours, hours, remainingMinutes)
}

// FormatFileSize formats a byte count as "1.2 GB", "500.5 MB" and so on.
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf(formatGB, float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}
