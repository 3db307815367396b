// Package inputcheck scans JSON-like payloads for injection payloads and
// validates common field formats.  The recursive validator reports every
// offending field by path and only hands back sanitized data when the whole
// tree is clean; partial sanitization is never returned.
package inputcheck

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultMaxLength bounds individual string fields.
const DefaultMaxLength = 10000

// Options control which scans apply to string fields.
type Options struct {
	// MaxLength caps each string field; zero means DefaultMaxLength.
	MaxLength int
	// AllowSQL skips the SQL-injection scan, for fields that legitimately
	// carry query-like text.
	AllowSQL bool
	// AllowHTML skips the XSS scan.
	AllowHTML bool
}

// Result aggregates all field errors found in a value tree.  Sanitized is
// nil unless Valid.
type Result struct {
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors,omitempty"`
	Sanitized any      `json:"sanitized,omitempty"`
}

type pattern struct {
	name string
	re   *regexp.Regexp
}

var sqlPatterns = []pattern{
	{"SQL keyword", regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|EXEC|EXECUTE|UNION|DECLARE)\b`)},
	{"SQL comment", regexp.MustCompile(`--|/\*|\*/`)},
	{"statement separator", regexp.MustCompile(`;`)},
	{"SQL procedure prefix", regexp.MustCompile(`(?i)\b(xp|sp)_`)},
	{"quoted separator", regexp.MustCompile(`(?i)['"]\s*(or|and|=|;|--)`)},
}

var xssPatterns = []pattern{
	{"script tag", regexp.MustCompile(`(?i)<\s*script`)},
	{"javascript URI", regexp.MustCompile(`(?i)javascript\s*:`)},
	{"inline event handler", regexp.MustCompile(`(?i)\bon\w+\s*=`)},
	{"embedded frame", regexp.MustCompile(`(?i)<\s*(iframe|object|embed)`)},
}

var traversalPatterns = []pattern{
	{"path traversal", regexp.MustCompile(`\.\./|\.\.\\`)},
}

// Validate walks data (strings and nested maps/slices of strings) and
// returns every violation by field path.  Sanitized output (strings trimmed
// of surrounding whitespace) is produced only when the entire tree is clean.
func Validate(data any, opts Options) Result {
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}

	var errs []string
	sanitized := walk(data, "", opts, &errs)
	if len(errs) > 0 {
		return Result{Valid: false, Errors: errs}
	}
	return Result{Valid: true, Sanitized: sanitized}
}

func walk(v any, path string, opts Options, errs *[]string) any {
	switch val := v.(type) {
	case string:
		return checkString(val, path, opts, errs)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = walk(child, joinPath(path, k), opts, errs)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = walk(child, fmt.Sprintf("%s[%d]", path, i), opts, errs)
		}
		return out
	default:
		// Numbers, booleans and nulls pass through untouched.
		return v
	}
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func checkString(s, path string, opts Options, errs *[]string) string {
	field := path
	if field == "" {
		field = "value"
	}

	if len(s) > opts.MaxLength {
		*errs = append(*errs, fmt.Sprintf("%s exceeds maximum length of %d characters", field, opts.MaxLength))
	}
	if !opts.AllowSQL {
		scan(s, field, sqlPatterns, errs)
	}
	if !opts.AllowHTML {
		scan(s, field, xssPatterns, errs)
	}
	scan(s, field, traversalPatterns, errs)

	return strings.TrimSpace(s)
}

func scan(s, field string, patterns []pattern, errs *[]string) {
	for _, p := range patterns {
		if p.re.MatchString(s) {
			*errs = append(*errs, fmt.Sprintf("%s contains a disallowed pattern: %s", field, p.name))
		}
	}
}
