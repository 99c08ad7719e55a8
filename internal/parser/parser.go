package parser

import (
	"fmt"
	"time"

	"github.com/batteryview/backend/internal/models"
)

// ProgressCallback is called periodically during parsing to report progress.
type ProgressCallback func(entriesProcessed, totalEntries int, samplesProcessed int64)

// Options controls parse behavior that differs between device firmwares.
type Options struct {
	// DropFirstSample discards the first element of every entry's Values
	// array when more than one sample exists. Some firmwares emit a
	// warm-up reading as the first sample of each series.
	DropFirstSample bool
}

// Parser defines the interface for export document parsers.
type Parser interface {
	// Name returns the unique name of the parser.
	Name() string
	// CanParse returns true if this parser can handle the given file.
	CanParse(filePath string) (bool, error)
	// Parse parses the entire file and returns the result.
	Parse(filePath string, opts Options) (*models.ParsedDocument, []*models.ParseError, error)
	// ParseWithProgress parses with progress callbacks for large files.
	ParseWithProgress(filePath string, opts Options, onProgress ProgressCallback) (*models.ParsedDocument, []*models.ParseError, error)
}

// Timestamp parsing

// fallbackLayouts covers the timestamp spellings seen across exports.
var fallbackLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp converts an export timestamp string into a UTC instant.
// The common "2006-01-02 15:04:05[.frac]" spelling takes a manual fast
// path; everything else goes through time.Parse fallbacks.
func ParseTimestamp(ts string) (time.Time, error) {
	if t, err := FastTimestamp(ts); err == nil {
		return t, nil
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp: %q", ts)
}

// FastTimestamp parses "%Y-%m-%d %H:%M:%S.%f" using manual parsing for speed.
// This is ~5x faster than time.Parse for the fixed format. The result is UTC.
func FastTimestamp(ts string) (time.Time, error) {
	// Example: "2025-09-25 06:02:11.086"
	// Minimum length: "2025-09-25 06:02:11" = 19 chars
	if len(ts) < 19 {
		return time.Time{}, fmt.Errorf("timestamp too short: %s", ts)
	}
	if ts[10] != ' ' {
		return time.Time{}, fmt.Errorf("not a space-separated timestamp: %s", ts)
	}

	// Parse date components directly (avoid string allocations)
	year := parseInt4(ts[0:4])
	month := parseInt2(ts[5:7])
	day := parseInt2(ts[8:10])
	hour := parseInt2(ts[11:13])
	min := parseInt2(ts[14:16])
	sec := parseInt2(ts[17:19])

	if year < 0 || month < 1 || month > 12 || day < 1 || day > 31 ||
		hour < 0 || hour > 23 || min < 0 || min > 59 || sec < 0 || sec > 59 {
		// Fallback to time.Parse for edge cases
		return time.Parse("2006-01-02 15:04:05.999999999", ts)
	}

	// Parse fractional seconds if present
	var nsec int
	if len(ts) > 20 && ts[19] == '.' {
		frac := ts[20:]
		// Pad or truncate to 9 digits (nanoseconds)
		fracLen := len(frac)
		if fracLen > 9 {
			frac = frac[:9]
			fracLen = 9
		}
		nsec = parseIntN(frac, fracLen)
		// Scale up to nanoseconds
		for i := fracLen; i < 9; i++ {
			nsec *= 10
		}
	}

	return time.Date(year, time.Month(month), day, hour, min, sec, nsec, time.UTC), nil
}

// parseInt2 parses a 2-digit decimal string. Returns -1 on error.
func parseInt2(s string) int {
	if len(s) != 2 {
		return -1
	}
	d1, d2 := s[0]-'0', s[1]-'0'
	if d1 > 9 || d2 > 9 {
		return -1
	}
	return int(d1)*10 + int(d2)
}

// parseInt4 parses a 4-digit decimal string. Returns -1 on error.
func parseInt4(s string) int {
	if len(s) != 4 {
		return -1
	}
	d1, d2, d3, d4 := s[0]-'0', s[1]-'0', s[2]-'0', s[3]-'0'
	if d1 > 9 || d2 > 9 || d3 > 9 || d4 > 9 {
		return -1
	}
	return int(d1)*1000 + int(d2)*100 + int(d3)*10 + int(d4)
}

// parseIntN parses an n-digit decimal string. Returns 0 on error.
func parseIntN(s string, n int) int {
	result := 0
	for i := 0; i < n; i++ {
		d := s[i] - '0'
		if d > 9 {
			return 0
		}
		result = result*10 + int(d)
	}
	return result
}
