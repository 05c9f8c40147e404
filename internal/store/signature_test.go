package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roverhq/rover/internal/store"
)

func TestTitleKeywords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		title string
		want  []string
	}{
		{
			name:  "strips stopwords and short tokens",
			title: "Potential SQL injection in the login handler",
			want:  []string{"sql", "injection", "login", "handler"},
		},
		{
			name:  "lowercases and drops punctuation",
			title: `Unchecked error: "Close()" failure ignored!`,
			want:  []string{"unchecked", "error", "close", "failure", "ignored"},
		},
		{
			name:  "deduplicates tokens",
			title: "Race condition race in race detector",
			want:  []string{"race", "condition", "detector"},
		},
		{
			name:  "empty title",
			title: "",
			want:  nil,
		},
		{
			name:  "only stopwords",
			title: "is it in the a an",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, store.TitleKeywords(tt.title))
		})
	}
}

func TestSignature_StableAcrossWording(t *testing.T) {
	t.Parallel()

	a := store.Signature("SQL injection in login handler", "auth/login.go", "security")
	b := store.Signature("Login handler SQL injection", "auth/login.go", "SECURITY")
	assert.Equal(t, a, b, "keyword order and category case must not matter")
}

func TestSignature_DistinguishesStructure(t *testing.T) {
	t.Parallel()

	base := store.Signature("SQL injection in login handler", "auth/login.go", "security")

	differentFile := store.Signature("SQL injection in login handler", "auth/signup.go", "security")
	assert.NotEqual(t, base, differentFile)

	differentTitle := store.Signature("Hardcoded credentials in login handler", "auth/login.go", "security")
	assert.NotEqual(t, base, differentTitle)

	differentCategory := store.Signature("SQL injection in login handler", "auth/login.go", "reliability")
	assert.NotEqual(t, base, differentCategory)
}

func TestCandidateIssue_Signature(t *testing.T) {
	t.Parallel()

	c := store.CandidateIssue{
		Title:    "Unbounded cache growth",
		FilePath: "cache/lru.go",
		Category: "performance",
	}
	assert.Equal(t, store.Signature(c.Title, c.FilePath, c.Category), c.Signature())
	assert.NotEmpty(t, store.SignatureHex(c.Signature()))
}

func TestSeverity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, store.SeverityCritical, store.ParseSeverity("CRITICAL"))
	assert.Equal(t, store.SeverityHigh, store.ParseSeverity(" high "))
	assert.Equal(t, store.SeverityMedium, store.ParseSeverity("bogus"), "unknown severities degrade to medium")
	assert.Less(t, store.SeverityCritical.Rank(), store.SeverityLow.Rank())
}

func TestLineRangeAndLocation(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", store.LineRange{}.String())
	assert.Equal(t, "7", store.LineRange{Start: 7}.String())
	assert.Equal(t, "7", store.LineRange{Start: 7, End: 7}.String())
	assert.Equal(t, "7-12", store.LineRange{Start: 7, End: 12}.String())

	c := store.CandidateIssue{FilePath: "a/b.go", LineRange: store.LineRange{Start: 3, End: 9}}
	assert.Equal(t, "a/b.go:3-9", c.Location())
	assert.Equal(t, "a/b.go", store.CandidateIssue{FilePath: "a/b.go"}.Location())
	assert.Equal(t, "", store.CandidateIssue{}.Location())
}
