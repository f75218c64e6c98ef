package tg

import (
	"regexp"
	"strings"
)

var (
	leadingSlashRun = regexp.MustCompile(`^/{2,}`)
	fileNameAllowed = regexp.MustCompile(`[^A-Za-z0-9_.]`)
	mimeTypeFormat  = regexp.MustCompile(`^[A-Za-z0-9.+-]+/[A-Za-z0-9.+-]+$`)
)

// recognisedMimeTypes is the fixed set of mime types this daemon will
// forward to a handler; anything else is dropped.
var recognisedMimeTypes = map[string]bool{
	"text/plain":               true,
	"text/csv":                true,
	"text/html":                true,
	"text/markdown":            true,
	"application/pdf":          true,
	"application/json":         true,
	"application/zip":          true,
	"application/octet-stream": true,
	"application/msword":       true,
	"application/vnd.ms-excel": true,
	"image/jpeg":               true,
	"image/png":                true,
	"image/gif":                true,
	"image/webp":               true,
	"audio/ogg":                true,
	"audio/mpeg":               true,
	"video/mp4":                true,
}

// InputSanitizer normalises inbound user text and validates user-supplied
// metadata before it reaches the handler.
type InputSanitizer struct{}

// SanitizeText collapses any run of two or more leading forward slashes
// to a single leading slash, and strips ASCII control characters other than
// tab (including CR and LF), preventing a
// user from injecting fake callback lines or directives.
func (InputSanitizer) SanitizeText(s string) string {
	s = stripControlChars(s)
	return leadingSlashRun.ReplaceAllString(s, "/")
}

// SanitizeFileName strips every character outside [A-Za-z0-9_.] and
// returns ok=false if nothing is left.
func (InputSanitizer) SanitizeFileName(name string) (sanitized string, ok bool) {
	sanitized = fileNameAllowed.ReplaceAllString(name, "")
	return sanitized, sanitized != ""
}

// SanitizeMimeType parses "type/subtype" and returns ok=false unless it is
// both well-formed and a member of the recognised set.
func (InputSanitizer) SanitizeMimeType(mime string) (sanitized string, ok bool) {
	mime = strings.TrimSpace(mime)
	if !mimeTypeFormat.MatchString(mime) {
		return "", false
	}
	if !recognisedMimeTypes[strings.ToLower(mime)] {
		return "", false
	}
	return mime, true
}

func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\r' || (r < 0x20 && r != '\t') {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
