// Package consolidate shrinks an issue backlog two ways: the consolidator
// clusters related open issues deterministically and merges each cluster
// into a single ticket via the LLM, and the planner turns the remaining
// issues into a dependency-ordered execution plan.
package consolidate

import (
	"fmt"

	"github.com/roverhq/rover/internal/store"
)

// Cluster is a transient grouping of related issues. It always holds at
// least two members.
type Cluster struct {
	ID     string
	Reason string
	Issues []store.ApprovedIssue
}

// clusterIssues groups open issues in three deterministic stages: exact
// (filePath, category) match, then filePath alone, then greedy linking by
// title-keyword Jaccard similarity at or above threshold. Issues consumed
// by an earlier stage never reach a later one, and all stages preserve
// input order.
func clusterIssues(issues []store.ApprovedIssue, threshold float64) []Cluster {
	var clusters []Cluster
	remaining := issues

	byPathCategory := func(is store.ApprovedIssue) string {
		return is.FilePath + "\x00" + is.Category
	}
	grouped, rest := groupBy(remaining, byPathCategory)
	for _, g := range grouped {
		clusters = append(clusters, Cluster{
			Reason: fmt.Sprintf("same file and category: %s (%s)", g[0].FilePath, g[0].Category),
			Issues: g,
		})
	}
	remaining = rest

	byPath := func(is store.ApprovedIssue) string { return is.FilePath }
	grouped, rest = groupBy(remaining, byPath)
	for _, g := range grouped {
		clusters = append(clusters, Cluster{
			Reason: fmt.Sprintf("same file: %s", g[0].FilePath),
			Issues: g,
		})
	}
	remaining = rest

	for _, g := range linkBySimilarity(remaining, threshold) {
		clusters = append(clusters, Cluster{
			Reason: "similar titles",
			Issues: g,
		})
	}

	for i := range clusters {
		clusters[i].ID = fmt.Sprintf("cluster-%d", i+1)
	}
	return clusters
}

// groupBy buckets issues by key, returning groups of size >= 2 in
// first-seen order plus the leftovers in input order. Issues without a
// file path cannot be co-located and always land in the leftovers.
func groupBy(issues []store.ApprovedIssue, key func(store.ApprovedIssue) string) (groups [][]store.ApprovedIssue, rest []store.ApprovedIssue) {
	buckets := make(map[string][]store.ApprovedIssue)
	var order []string
	for _, is := range issues {
		if is.FilePath == "" {
			rest = append(rest, is)
			continue
		}
		k := key(is)
		if _, seen := buckets[k]; !seen {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], is)
	}
	for _, k := range order {
		if len(buckets[k]) >= 2 {
			groups = append(groups, buckets[k])
		} else {
			rest = append(rest, buckets[k][0])
		}
	}
	return groups, rest
}

// linkBySimilarity seeds a group with the first unassigned issue and pulls
// in every later issue whose title keywords reach the threshold against any
// existing member. Only groups of size >= 2 survive.
func linkBySimilarity(issues []store.ApprovedIssue, threshold float64) [][]store.ApprovedIssue {
	keywords := make([][]string, len(issues))
	for i, is := range issues {
		keywords[i] = store.TitleKeywords(is.Title)
	}

	assigned := make([]bool, len(issues))
	var groups [][]store.ApprovedIssue
	for i := range issues {
		if assigned[i] {
			continue
		}
		group := []store.ApprovedIssue{issues[i]}
		members := []int{i}
		assigned[i] = true
		for j := i + 1; j < len(issues); j++ {
			if assigned[j] {
				continue
			}
			for _, m := range members {
				if jaccard(keywords[m], keywords[j]) >= threshold {
					group = append(group, issues[j])
					members = append(members, j)
					assigned[j] = true
					break
				}
			}
		}
		if len(group) >= 2 {
			groups = append(groups, group)
		}
	}
	return groups
}

// jaccard computes |A ∩ B| / |A ∪ B| over two keyword slices. Two empty
// sets share nothing rather than everything.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, w := range a {
		set[w] = true
	}
	union := len(set)
	inter := 0
	for _, w := range b {
		if set[w] {
			inter++
			continue
		}
		set[w] = true
		union++
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
