// Package jsonutil extracts structured JSON replies from the freeform text an
// LLM CLI prints. Model output routinely wraps the payload in prose, ANSI
// color codes, or markdown fences; callers hand the raw text to Extract or
// ExtractInto and get back the first parseable value.
//
// Extraction strategies, in order:
//  1. Balanced-delimiter matching for top-level { } and [ ] structures,
//     string- and escape-aware.
//  2. Markdown code fences (```json or bare ```).
//
// Callers are expected to degrade on error (zero candidates, implicit
// rejection) rather than abort their pipeline.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// maxInputBytes caps the input size. Larger inputs are rejected to prevent
// memory exhaustion from a runaway agent transcript.
const maxInputBytes = 10 * 1024 * 1024 // 10 MB

// reANSI matches ANSI CSI sequences that agent CLIs embed in their output.
var reANSI = regexp.MustCompile(`\x1b\[[0-9;]*[mGKHF]`)

// reCodeFence matches a markdown code fence, optionally tagged "json". The
// fenced content is capture group 1. (?s) lets .*? span newlines; the
// non-greedy quantifier stops at the first closing fence.
var reCodeFence = regexp.MustCompile("(?s)```(?:json)?[ \\t]*\n(.*?)\n```")

// sanitize strips a leading UTF-8 BOM and ANSI escape codes, enforcing the
// size cap first.
func sanitize(text string) (string, error) {
	if len(text) > maxInputBytes {
		return "", fmt.Errorf("jsonutil: input exceeds maximum size of %d bytes", maxInputBytes)
	}
	text = strings.TrimPrefix(text, "\xef\xbb\xbf")
	text = reANSI.ReplaceAllString(text, "")
	return text, nil
}

// Extract returns the first valid JSON object or array found in text, trying
// balanced-delimiter matching first and code fences second. An error is
// returned when no valid JSON is present or the input exceeds the size cap.
func Extract(text string) (json.RawMessage, error) {
	text, err := sanitize(text)
	if err != nil {
		return nil, err
	}

	all := extractAllFrom(text)
	if len(all) == 0 {
		return nil, fmt.Errorf("jsonutil: no valid JSON found in text")
	}
	return all[0], nil
}

// ExtractAll returns every valid top-level JSON object and array found in
// text, in order of appearance. Fenced content already captured by the
// delimiter pass is not returned twice.
func ExtractAll(text string) []json.RawMessage {
	cleaned, err := sanitize(text)
	if err != nil {
		return nil
	}
	return extractAllFrom(cleaned)
}

// ExtractInto extracts the first JSON value from text and unmarshals it into
// target.
func ExtractInto(text string, target any) error {
	raw, err := Extract(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("jsonutil: unmarshal failed: %w", err)
	}
	return nil
}

// span records the byte range [start, end) of an accepted candidate so later
// strategies can skip content that was already captured.
type span struct{ start, end int }

func inAnySpan(pos int, spans []span) bool {
	for _, s := range spans {
		if pos >= s.start && pos < s.end {
			return true
		}
	}
	return false
}

// extractAllFrom applies the extraction strategies to pre-sanitized text.
func extractAllFrom(text string) []json.RawMessage {
	var results []json.RawMessage
	var accepted []span

	// Strategy 1: balanced top-level { } and [ ] structures.
	n := len(text)
	for i := 0; i < n; i++ {
		ch := text[i]
		if ch != '{' && ch != '[' {
			continue
		}
		end := matchingDelimiter(text, i)
		if end < 0 {
			continue
		}
		candidate := text[i : end+1]
		if !json.Valid([]byte(candidate)) {
			continue
		}
		results = append(results, json.RawMessage(candidate))
		accepted = append(accepted, span{i, end + 1})
		// Do not descend into an accepted candidate's nested values.
		i = end
	}

	// Strategy 2: markdown code fences, for payloads the delimiter pass
	// missed (for example fenced JSON preceded by unbalanced braces).
	for _, loc := range reCodeFence.FindAllStringSubmatchIndex(text, -1) {
		if len(loc) < 4 {
			continue
		}
		if inAnySpan(loc[2], accepted) {
			continue
		}
		inner := strings.TrimSpace(text[loc[2]:loc[3]])
		if inner == "" || !json.Valid([]byte(inner)) {
			continue
		}
		results = append(results, json.RawMessage(inner))
	}

	return results
}

// matchingDelimiter returns the index of the closer that balances the opener
// ('{' -> '}', '[' -> ']') at position start, or -1 when the text ends before
// the structure closes. Nested delimiters, double-quoted strings, and escape
// sequences inside strings are handled.
func matchingDelimiter(text string, start int) int {
	openCh := text[start]
	var closeCh byte
	switch openCh {
	case '{':
		closeCh = '}'
	case '[':
		closeCh = ']'
	default:
		return -1
	}

	depth := 0
	inString := false
	n := len(text)

	for i := start; i < n; i++ {
		ch := text[i]

		if inString {
			switch ch {
			case '\\':
				i++ // skip the escaped character
			case '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}
