package scan

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roverhq/rover/internal/jsonutil"
	"github.com/roverhq/rover/internal/llm"
	"github.com/roverhq/rover/internal/store"
)

// votePayload is the JSON object each voter must answer with.
type votePayload struct {
	Approve   bool   `json:"approve"`
	Reasoning string `json:"reasoning"`
}

// runVoters fans out the configured number of voters, each walking every
// candidate in order. Voter failures degrade to rejections, so the group
// always completes.
func (p *Pipeline) runVoters(ctx context.Context, targetPath string, candidates []store.CandidateIssue) ([]store.Vote, float64) {
	voters := p.cfg.Voters
	if voters < 1 {
		voters = 1
	}

	perVoter := make([][]store.Vote, voters)
	costs := make([]float64, voters)

	g, gctx := errgroup.WithContext(ctx)
	for v := 0; v < voters; v++ {
		voterID := fmt.Sprintf("voter-%d", v+1)
		g.Go(func() error {
			for _, cand := range candidates {
				vote, cost := p.voteOne(gctx, targetPath, voterID, cand)
				perVoter[v] = append(perVoter[v], vote)
				costs[v] += cost
			}
			// Voters degrade per candidate; never abort the group.
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers always return nil

	var votes []store.Vote
	var total float64
	for v := range perVoter {
		votes = append(votes, perVoter[v]...)
		total += costs[v]
	}
	return votes, total
}

// voteOne asks a single voter about a single candidate. Transport and
// parse failures become approve=false with the error as reasoning.
func (p *Pipeline) voteOne(ctx context.Context, targetPath, voterID string, cand store.CandidateIssue) (store.Vote, float64) {
	vote := store.Vote{VoterID: voterID, IssueID: cand.ID}

	res, err := p.runner.Run(ctx, llm.Request{
		Prompt:       voterPrompt(cand),
		WorkDir:      targetPath,
		MaxTurns:     p.cfg.VoterMaxTurns,
		AllowedTools: readOnlyTools,
	})
	if err != nil {
		p.logger.Warn("voter call failed", "voter", voterID, "issue", cand.ID, "error", err)
		vote.Reasoning = fmt.Sprintf("voter call failed: %v", err)
		return vote, 0
	}

	var payload votePayload
	if err := jsonutil.ExtractInto(res.Text, &payload); err != nil {
		p.logger.Warn("voter response not parseable", "voter", voterID, "issue", cand.ID, "error", err)
		vote.Reasoning = fmt.Sprintf("unparseable vote response: %v", err)
		return vote, res.CostUSD
	}

	vote.Approve = payload.Approve
	vote.Reasoning = payload.Reasoning
	return vote, res.CostUSD
}
