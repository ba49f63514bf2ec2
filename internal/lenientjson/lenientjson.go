// Package lenientjson parses the near-JSON that language models emit when
// asked for structured output. It tolerates a small, explicit set of defects
// and nothing else:
//
//   - prose or code fences surrounding the first top-level JSON array or
//     object (everything outside the value is discarded);
//   - single-quoted strings at object-key and value boundaries, normalized
//     to double quotes;
//   - backslash-escaped single quotes inside those strings.
//
// A fragment that is already valid JSON is returned verbatim; any input still
// invalid after normalization is rejected.
package lenientjson

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Go's regexp has no lookaround, so the boundary patterns capture the
// delimiter and restore it in the replacement.
var (
	openQuotePattern  = regexp.MustCompile(`([\{\[:,]\s*)'`)
	closeQuotePattern = regexp.MustCompile(`'(\s*[:,\}\]])`)
)

// Extract returns the first top-level JSON array or object found in s,
// normalized and validated.
func Extract(s string) (gjson.Result, error) {
	fragment, err := firstValue(s)
	if err != nil {
		return gjson.Result{}, err
	}

	// The quote rewrite is a repair step for invalid input only. Valid JSON
	// must pass through untouched: the boundary patterns cannot see string
	// context, so they would mangle quoted words inside legitimate values.
	if gjson.Valid(fragment) {
		return gjson.Parse(fragment), nil
	}

	normalized := Normalize(fragment)
	if !gjson.Valid(normalized) {
		return gjson.Result{}, fmt.Errorf("not valid JSON after normalization: %.80q", normalized)
	}
	return gjson.Parse(normalized), nil
}

// Normalize rewrites tolerated defects into valid JSON syntax: single quotes
// at structural boundaries become double quotes, and escaped single quotes
// become literal ones.
func Normalize(s string) string {
	s = openQuotePattern.ReplaceAllString(s, `$1"`)
	s = closeQuotePattern.ReplaceAllString(s, `"$1`)
	s = strings.ReplaceAll(s, `\'`, `'`)
	return s
}

// firstValue slices out the first balanced top-level array or object. It
// scans brackets outside string literals, so prose before and after the
// value (including markdown fences) is ignored.
func firstValue(s string) (string, error) {
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return "", fmt.Errorf("no JSON array or object found")
	}

	open := s[start]
	var close byte = ']'
	if open == '{' {
		close = '}'
	}

	depth := 0
	inString := false
	var quote byte
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case c == '\\':
				i++
			case c == quote:
				inString = false
			}
			continue
		}
		switch c {
		case '"', '\'':
			inString = true
			quote = c
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced %c at offset %d", open, start)
}
