package store

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// titleStopwords are tokens that carry no signal when comparing issue
// titles: articles, prepositions, and review-prose filler.
var titleStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"in": true, "on": true, "of": true, "to": true, "for": true,
	"with": true, "without": true, "from": true, "into": true, "via": true,
	"is": true, "are": true, "was": true, "be": true, "been": true,
	"this": true, "that": true, "these": true, "those": true,
	"it": true, "its": true, "as": true, "at": true, "by": true,
	"not": true, "no": true, "when": true, "where": true, "which": true,
	"can": true, "could": true, "should": true, "may": true, "might": true,
	"will": true, "would": true, "has": true, "have": true, "does": true,
	"use": true, "uses": true, "used": true, "using": true,
	"issue": true, "issues": true, "potential": true, "possible": true,
}

// TitleKeywords normalizes an issue title into its significant tokens:
// lowercased, punctuation stripped, stopwords and tokens shorter than
// three characters dropped, deduplicated, order preserved.
func TitleKeywords(title string) []string {
	lowered := strings.ToLower(title)
	cleaned := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return ' '
	}, lowered)

	seen := make(map[string]bool)
	var keywords []string
	for _, tok := range strings.Fields(cleaned) {
		if len(tok) <= 2 || titleStopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		keywords = append(keywords, tok)
	}
	return keywords
}

// Signature fingerprints an issue's structure: sorted title keywords plus
// normalized file path and category. Two findings with the same signature
// describe the same underlying problem even when the prose differs, which
// is what wont_fix suppression keys on.
func Signature(title, filePath, category string) uint64 {
	keywords := TitleKeywords(title)
	sorted := make([]string, len(keywords))
	copy(sorted, keywords)
	sort.Strings(sorted)

	var b strings.Builder
	for _, kw := range sorted {
		b.WriteString(kw)
		b.WriteByte(0x1f)
	}
	b.WriteString(strings.ToLower(strings.TrimSpace(filePath)))
	b.WriteByte(0x1f)
	b.WriteString(strings.ToLower(strings.TrimSpace(category)))
	return xxhash.Sum64String(b.String())
}

// Signature fingerprints the candidate for wont_fix suppression checks.
func (c CandidateIssue) Signature() uint64 {
	return Signature(c.Title, c.FilePath, c.Category)
}

// SignatureHex renders a signature the way traces and logs show it.
func SignatureHex(sig uint64) string {
	return strconv.FormatUint(sig, 16)
}
