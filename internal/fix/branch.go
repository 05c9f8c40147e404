package fix

import (
	"context"
	"errors"
	"fmt"
)

// maxBranchSuffix bounds the collision scan for fix branch names.
const maxBranchSuffix = 100

// ErrBranchNameExhausted is returned when fix/<id> and every numbered
// variant up to -100 already exist in the repository.
var ErrBranchNameExhausted = errors.New("no free fix branch name")

// brancher is the one git operation branch picking needs.
type brancher interface {
	BranchExists(ctx context.Context, branch string) (bool, error)
}

// pickBranchName returns the first branch name free for an issue: fix/<id>,
// then fix/<id>-2 through fix/<id>-100. Re-fixing the same issue therefore
// never clobbers an existing branch or worktree.
func pickBranchName(ctx context.Context, g brancher, issueID string) (string, error) {
	base := "fix/" + issueID
	for i := 1; i <= maxBranchSuffix; i++ {
		name := base
		if i > 1 {
			name = fmt.Sprintf("%s-%d", base, i)
		}
		exists, err := g.BranchExists(ctx, name)
		if err != nil {
			return "", fmt.Errorf("checking branch %q: %w", name, err)
		}
		if !exists {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %s through %s-%d all taken", ErrBranchNameExhausted, base, base, maxBranchSuffix)
}
