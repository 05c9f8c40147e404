package fix

import "strings"

// Marker is a terminal sentinel the fix agent prints on its own line so the
// orchestrator can learn outcomes an exit code cannot carry.
type Marker string

const (
	// MarkerCommitComplete reports that the agent committed its work.
	MarkerCommitComplete Marker = "COMMIT_COMPLETE"

	// MarkerAlreadyFixed reports that the issue no longer exists in the
	// code. Only honored on the first iteration.
	MarkerAlreadyFixed Marker = "ALREADY_FIXED"

	// MarkerNotApplicable disputes the previous review findings. Only
	// honored on iterations after the first, and only after the disputed
	// items survive a dismissal check.
	MarkerNotApplicable Marker = "REVIEW_NOT_APPLICABLE"

	// MarkerBlocked reports that the agent cannot make progress.
	MarkerBlocked Marker = "BLOCKED"
)

// knownMarkers lists every marker in detection order.
var knownMarkers = []Marker{
	MarkerCommitComplete,
	MarkerAlreadyFixed,
	MarkerNotApplicable,
	MarkerBlocked,
}

// DetectMarker scans output for the first line starting with a terminal
// marker and returns it with any trailing detail text (e.g., the
// justification after REVIEW_NOT_APPLICABLE). Returns an empty marker when
// none is present.
func DetectMarker(output string) (Marker, string) {
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		for _, m := range knownMarkers {
			if strings.HasPrefix(trimmed, string(m)) {
				detail := strings.TrimSpace(strings.TrimPrefix(trimmed, string(m)))
				return m, detail
			}
		}
	}
	return "", ""
}

// DetectMarkers returns every distinct marker present in output in
// first-appearance order. Trace entries record all of them because one
// response can both dispute a finding and commit follow-up work.
func DetectMarkers(output string) []string {
	var found []string
	seen := make(map[Marker]bool, len(knownMarkers))
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		for _, m := range knownMarkers {
			if seen[m] {
				continue
			}
			if strings.HasPrefix(trimmed, string(m)) {
				seen[m] = true
				found = append(found, string(m))
			}
		}
	}
	return found
}

// hasMarker reports whether output contains a specific marker.
func hasMarker(output string, marker Marker) bool {
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), string(marker)) {
			return true
		}
	}
	return false
}

// markerDetail returns the detail text after a specific marker, or "" when
// the marker is absent or bare.
func markerDetail(output string, marker Marker) string {
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, string(marker)) {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, string(marker)))
		}
	}
	return ""
}
