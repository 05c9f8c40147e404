package fix

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/roverhq/rover/internal/jsonutil"
	"github.com/roverhq/rover/internal/llm"
)

// ItemSeverity weights one review finding.
type ItemSeverity string

const (
	// ItemMustFix blocks the fix until addressed.
	ItemMustFix ItemSeverity = "must_fix"

	// ItemShouldFix is actionable but not blocking on its own.
	ItemShouldFix ItemSeverity = "should_fix"

	// ItemSuggestion is recorded in the trace but never drives an
	// iteration.
	ItemSuggestion ItemSeverity = "suggestion"
)

// ReviewItem is one structured finding from a review round.
type ReviewItem struct {
	Severity    ItemSeverity `json:"severity"`
	Description string       `json:"description"`
	File        string       `json:"file,omitempty"`
}

// ReviewAnalysis is the parsed outcome of one multi-aspect review round.
type ReviewAnalysis struct {
	IsClean bool         `json:"isClean"`
	Items   []ReviewItem `json:"items"`
}

// Actionable returns the findings that demand another iteration, blocking
// items first so the next prompt leads with them.
func (a ReviewAnalysis) Actionable() []ReviewItem {
	var items []ReviewItem
	for _, item := range a.Items {
		if item.Severity == ItemMustFix {
			items = append(items, item)
		}
	}
	for _, item := range a.Items {
		if item.Severity == ItemShouldFix {
			items = append(items, item)
		}
	}
	return items
}

// MustFix returns only the blocking findings.
func (a ReviewAnalysis) MustFix() []ReviewItem {
	var items []ReviewItem
	for _, item := range a.Items {
		if item.Severity == ItemMustFix {
			items = append(items, item)
		}
	}
	return items
}

const (
	// reviewMaxTurns bounds one aspect reviewer's exploration of the
	// worktree. Reviews read a lot but decide quickly.
	reviewMaxTurns = 20

	// parseMaxTurns bounds the structuring call, which needs no tools.
	parseMaxTurns = 5
)

// reviewRound carries everything one review round produced. Cost is
// populated even when the round failed, so callers always account for it.
type reviewRound struct {
	analysis ReviewAnalysis

	// aspects holds each reviewer's raw text, keyed by aspect name, for
	// the trace.
	aspects map[string]string

	cost float64
}

// reviewer runs the multi-aspect review and its supporting parse and
// dismissal calls against one worktree.
type reviewer struct {
	runner llm.Runner
	logger *log.Logger
}

// run executes the aspect reviews concurrently and parses their combined
// output. Any aspect failure fails the whole round: a half-reviewed fix
// must not pass as clean. The returned round is never nil.
func (r *reviewer) run(ctx context.Context, worktree, diff, issueContent string) (*reviewRound, error) {
	aspects := reviewAspects(diff, issueContent)

	type aspectOutcome struct {
		text string
		cost float64
		err  error
	}
	outcomes := make([]aspectOutcome, len(aspects))

	g, gctx := errgroup.WithContext(ctx)
	for i, aspect := range aspects {
		g.Go(func() error {
			res, err := r.runner.Run(gctx, llm.Request{
				Prompt:       aspect.prompt,
				WorkDir:      worktree,
				MaxTurns:     reviewMaxTurns,
				AllowedTools: readOnlyTools,
			})
			switch {
			case err != nil:
				outcomes[i] = aspectOutcome{err: fmt.Errorf("%s review: %w", aspect.name, err)}
			case !res.Success():
				outcomes[i] = aspectOutcome{cost: res.CostUSD, err: fmt.Errorf("%s review exited %d: %s", aspect.name, res.ExitCode, strings.TrimSpace(res.Stderr))}
			default:
				outcomes[i] = aspectOutcome{text: res.Text, cost: res.CostUSD}
			}
			// Failures surface through the outcome slot; the group only
			// stops on context cancellation.
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers always return nil

	round := &reviewRound{aspects: make(map[string]string, len(aspects))}
	var combined strings.Builder
	var firstErr error
	for i, aspect := range aspects {
		out := outcomes[i]
		round.cost += out.cost
		if out.err != nil {
			if firstErr == nil {
				firstErr = out.err
			}
			continue
		}
		round.aspects[aspect.name] = out.text
		fmt.Fprintf(&combined, "### %s review\n\n%s\n\n", aspect.name, strings.TrimSpace(out.text))
	}
	if firstErr != nil {
		return round, firstErr
	}

	analysis, parseCost, err := r.parseAnalysis(ctx, worktree, combined.String())
	round.cost += parseCost
	if err != nil {
		return round, err
	}
	round.analysis = analysis
	return round, nil
}

// parseAnalysis structures the combined review text with a dedicated LLM
// call. Responses occasionally wrap or mangle the JSON; one retry with the
// same prompt covers that before the round fails.
func (r *reviewer) parseAnalysis(ctx context.Context, worktree, reviews string) (ReviewAnalysis, float64, error) {
	prompt := parseAnalysisPrompt(reviews)

	var cost float64
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		res, err := r.runner.Run(ctx, llm.Request{
			Prompt:   prompt,
			WorkDir:  worktree,
			MaxTurns: parseMaxTurns,
		})
		if err != nil {
			lastErr = fmt.Errorf("parse review call: %w", err)
			continue
		}
		cost += res.CostUSD
		if !res.Success() {
			lastErr = fmt.Errorf("parse review exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
			continue
		}

		var analysis ReviewAnalysis
		if err := jsonutil.ExtractInto(res.Text, &analysis); err != nil {
			lastErr = fmt.Errorf("parsing review analysis: %w", err)
			r.logger.Warn("review analysis did not parse", "attempt", attempt, "error", err)
			continue
		}
		normalizeAnalysis(&analysis)
		return analysis, cost, nil
	}
	return ReviewAnalysis{}, cost, lastErr
}

// normalizeAnalysis coerces unknown severities to suggestion and drops
// empty findings, so a sloppy parse can neither block nor fabricate an
// iteration.
func normalizeAnalysis(a *ReviewAnalysis) {
	kept := a.Items[:0]
	for _, item := range a.Items {
		if strings.TrimSpace(item.Description) == "" {
			continue
		}
		switch item.Severity {
		case ItemMustFix, ItemShouldFix, ItemSuggestion:
		default:
			item.Severity = ItemSuggestion
		}
		kept = append(kept, item)
	}
	a.Items = kept
	if len(kept) == 0 {
		a.IsClean = true
	}
}

// dismissalPayload is the JSON contract of the dismissal check.
type dismissalPayload struct {
	ValidItemNumbers []int `json:"valid_item_numbers"`
}

// verifyDismissal re-checks disputed blocking findings with a skeptical
// second pass and returns the ones it upholds; those go back on the
// actionable list. No disputed items means nothing to uphold.
func (r *reviewer) verifyDismissal(ctx context.Context, worktree string, items []ReviewItem, justification string) ([]ReviewItem, float64, error) {
	if len(items) == 0 {
		return nil, 0, nil
	}

	res, err := r.runner.Run(ctx, llm.Request{
		Prompt:       dismissalPrompt(items, justification),
		WorkDir:      worktree,
		MaxTurns:     reviewMaxTurns,
		AllowedTools: readOnlyTools,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("dismissal check: %w", err)
	}
	if !res.Success() {
		return nil, res.CostUSD, fmt.Errorf("dismissal check exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	var payload dismissalPayload
	if err := jsonutil.ExtractInto(res.Text, &payload); err != nil {
		return nil, res.CostUSD, fmt.Errorf("parsing dismissal response: %w", err)
	}

	var upheld []ReviewItem
	for _, n := range payload.ValidItemNumbers {
		if n >= 1 && n <= len(items) {
			upheld = append(upheld, items[n-1])
		}
	}
	return upheld, res.CostUSD, nil
}
