package fix

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectMarker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output string
		marker Marker
		detail string
	}{
		{
			name:   "commit complete bare",
			output: "Staged auth/login.go.\nCOMMIT_COMPLETE\n",
			marker: MarkerCommitComplete,
		},
		{
			name:   "already fixed with detail",
			output: "ALREADY_FIXED the handler was parameterized in an earlier commit",
			marker: MarkerAlreadyFixed,
			detail: "the handler was parameterized in an earlier commit",
		},
		{
			name:   "blocked with reason",
			output: "some progress notes\n  BLOCKED missing database schema\n",
			marker: MarkerBlocked,
			detail: "missing database schema",
		},
		{
			name:   "not applicable",
			output: "REVIEW_NOT_APPLICABLE the flagged code path is unreachable",
			marker: MarkerNotApplicable,
			detail: "the flagged code path is unreachable",
		},
		{
			name:   "first marker line wins",
			output: "ALREADY_FIXED\nCOMMIT_COMPLETE\n",
			marker: MarkerAlreadyFixed,
		},
		{
			name:   "mid-sentence mention is not a marker",
			output: "I will print COMMIT_COMPLETE once the commit lands.",
			marker: "",
		},
		{
			name:   "no markers",
			output: "still thinking about the right fix",
			marker: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			marker, detail := DetectMarker(tt.output)
			assert.Equal(t, tt.marker, marker)
			assert.Equal(t, tt.detail, detail)
		})
	}
}

func TestDetectMarkers_CollectsDistinct(t *testing.T) {
	t.Parallel()

	output := "REVIEW_NOT_APPLICABLE item 2 is dead code\nbut item 1 was real, fixing it\nCOMMIT_COMPLETE\nCOMMIT_COMPLETE\n"
	assert.Equal(t, []string{"REVIEW_NOT_APPLICABLE", "COMMIT_COMPLETE"}, DetectMarkers(output))
}

func TestDetectMarkers_Empty(t *testing.T) {
	t.Parallel()
	assert.Nil(t, DetectMarkers("no sentinel lines here"))
}

func TestHasMarkerAndDetail(t *testing.T) {
	t.Parallel()

	output := "investigating\nBLOCKED   cannot reach the staging database  \n"
	assert.True(t, hasMarker(output, MarkerBlocked))
	assert.False(t, hasMarker(output, MarkerCommitComplete))
	assert.Equal(t, "cannot reach the staging database", markerDetail(output, MarkerBlocked))
	assert.Equal(t, "", markerDetail(output, MarkerAlreadyFixed))
}
