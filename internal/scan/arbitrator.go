package scan

import (
	"time"

	"github.com/roverhq/rover/internal/catalog"
	"github.com/roverhq/rover/internal/store"
)

// arbitrate is pure computation over votes plus the resulting storage
// writes: candidates meeting the approval threshold get a ticket and a
// store entry, everything else is discarded. Candidates matching the
// structural signature of a dismissed issue are suppressed before the
// threshold check; candidates whose id is already on file are skipped so
// earlier scans keep ownership.
func (p *Pipeline) arbitrate(targetPath string, spec catalog.AgentSpec, candidates []store.CandidateIssue, votes []store.Vote) (approved []store.ApprovedIssue, rejected []store.CandidateIssue, ticketPaths []string, err error) {
	votesRequired := p.cfg.VotesRequired
	if votesRequired < 1 {
		votesRequired = 1
	}

	byIssue := make(map[string][]store.Vote, len(candidates))
	for _, v := range votes {
		byIssue[v.IssueID] = append(byIssue[v.IssueID], v)
	}

	suppressed, err := p.dismissedSignatures()
	if err != nil {
		return nil, nil, nil, err
	}

	for _, cand := range candidates {
		candVotes := byIssue[cand.ID]
		approvals := 0
		for _, v := range candVotes {
			if v.Approve {
				approvals++
			}
		}
		if approvals < votesRequired {
			p.logger.Debug("candidate rejected by vote",
				"issue", cand.ID, "approvals", approvals, "required", votesRequired)
			rejected = append(rejected, cand)
			continue
		}

		if suppressed[cand.Signature()] {
			p.logger.Info("candidate suppressed by wont_fix signature",
				"issue", cand.ID, "signature", store.SignatureHex(cand.Signature()))
			rejected = append(rejected, cand)
			continue
		}

		exists, err := p.issues.Has(cand.ID)
		if err != nil {
			return nil, nil, nil, err
		}
		if exists {
			p.logger.Debug("candidate already on file, skipping", "issue", cand.ID)
			rejected = append(rejected, cand)
			continue
		}

		issue := store.ApprovedIssue{
			CandidateIssue: cand,
			Votes:          candVotes,
			ApprovedAt:     time.Now().UTC(),
			Status:         store.StatusOpen,
		}

		ticketPath, ticketID, err := store.WriteTicket(targetPath, issue, spec.Name, nil)
		if err != nil {
			return nil, nil, nil, err
		}
		if _, err := p.issues.Add(issue); err != nil {
			return nil, nil, nil, err
		}
		if err := p.issues.SetTicketPath(issue.ID, ticketPath); err != nil {
			return nil, nil, nil, err
		}
		issue.TicketPath = ticketPath

		p.logger.Info("ticket created",
			"issue", cand.ID, "ticket", ticketID, "severity", cand.Severity, "approvals", approvals)
		approved = append(approved, issue)
		ticketPaths = append(ticketPaths, ticketPath)
	}
	return approved, rejected, ticketPaths, nil
}

// dismissedSignatures returns the structural fingerprints of wont_fix
// issues, the suppression set applied before ticket creation.
func (p *Pipeline) dismissedSignatures() (map[uint64]bool, error) {
	dismissed, err := p.issues.WontFix()
	if err != nil {
		return nil, err
	}
	sigs := make(map[uint64]bool, len(dismissed))
	for _, issue := range dismissed {
		sigs[issue.Signature()] = true
	}
	return sigs, nil
}
