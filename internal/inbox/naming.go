package inbox

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultNameMaxLen caps the sanitized original filename, in runes.
	DefaultNameMaxLen = 180

	// FallbackName is used when sanitizing leaves nothing.
	FallbackName = "attachment.bin"

	shortIDLen = 8
)

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// SanitizeFilename replaces characters that are unsafe on common
// filesystems with "_", collapses whitespace and caps the length at maxLen
// runes (extension preserved where possible). Leading and trailing dots,
// spaces and underscores are trimmed so the result is never hidden and
// never a bare "." or "..".
func SanitizeFilename(name string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultNameMaxLen
	}
	name = strings.Map(func(r rune) rune {
		// Bidi and zero-width marks show up in forwarded attachment names.
		if unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, name)
	name = unsafeChars.ReplaceAllString(name, "_")
	name = spaceRuns.ReplaceAllString(name, " ")
	name = strings.Trim(name, " ._")
	if name == "" {
		return FallbackName
	}
	return truncateKeepExt(name, maxLen)
}

func truncateKeepExt(name string, maxLen int) string {
	if utf8.RuneCountInString(name) <= maxLen {
		return name
	}
	ext := filepath.Ext(name)
	if utf8.RuneCountInString(ext) >= maxLen/2 {
		ext = ""
	}
	stem := []rune(strings.TrimSuffix(name, ext))
	keep := maxLen - utf8.RuneCountInString(ext)
	return strings.TrimRight(string(stem[:keep]), " ._") + ext
}

// ShortID returns the first eight alphanumeric characters of id.
func ShortID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			if b.Len() == shortIDLen {
				break
			}
		}
	}
	if b.Len() == 0 {
		return "noid"
	}
	return b.String()
}

// OutputName builds the deterministic payload name
// "<YYYYMMDD>__<shortid>__<sanitized original>". The date is taken in UTC.
func OutputName(received time.Time, sourceID, original string, maxLen int) string {
	return received.UTC().Format("20060102") + "__" + ShortID(sourceID) + "__" + SanitizeFilename(original, maxLen)
}

// NumberedName inserts "_n" before the extension. n < 2 returns name.
func NumberedName(name string, n int) string {
	if n < 2 {
		return name
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + strconv.Itoa(n) + ext
}
