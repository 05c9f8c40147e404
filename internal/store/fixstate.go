package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/roverhq/rover/internal/logging"
)

// ErrFixNotFound is returned when no fix record exists for an issue id.
var ErrFixNotFound = errors.New("fix record not found")

// FixStatus is a fix's position in its lifecycle.
type FixStatus string

const (
	// FixInProgress marks an active fix loop.
	FixInProgress FixStatus = "in_progress"

	// FixReadyForReview marks a finished worktree awaiting `review submit`.
	FixReadyForReview FixStatus = "ready_for_review"

	// FixPRCreated marks a fix whose pull request is open.
	FixPRCreated FixStatus = "pr_created"

	// FixMerged marks a historical record whose worktree may be gone.
	FixMerged FixStatus = "merged"

	// FixError marks a fix that stopped on an unrecoverable error. The
	// worktree is kept for inspection.
	FixError FixStatus = "error"
)

// FixRecord tracks one issue's fix attempt from worktree provisioning
// through PR creation.
type FixRecord struct {
	IssueID      string     `json:"issueId"`
	BranchName   string     `json:"branchName"`
	WorktreePath string     `json:"worktreePath"`
	Status       FixStatus  `json:"status"`
	Iterations   int        `json:"iterations"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	Error        string     `json:"error,omitempty"`
	IssueContent string     `json:"issueContent"`
	IssueSummary string     `json:"issueSummary"`
	PRURL        string     `json:"prUrl,omitempty"`
	PRNumber     int        `json:"prNumber,omitempty"`
}

// fixStateFile is the on-disk shape of fix-state.json.
type fixStateFile struct {
	Fixes []FixRecord `json:"fixes"`
}

// FixStateStore persists fix records for one target repository.
type FixStateStore struct {
	path   string
	logger *log.Logger
}

// NewFixStateStore returns a store bound to targetPath's fix-state.json.
func NewFixStateStore(targetPath string, logger *log.Logger) *FixStateStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &FixStateStore{path: FixStatePath(targetPath), logger: logger}
}

func (s *FixStateStore) load() (*fixStateFile, error) {
	doc := &fixStateFile{}
	_, err := readJSON(s.path, doc)
	if err != nil {
		if errors.Is(err, errCorrupt) {
			s.logger.Warn("fix state corrupt, starting fresh", "path", s.path, "error", err)
			return &fixStateFile{}, nil
		}
		return nil, err
	}
	return doc, nil
}

// All returns every fix record.
func (s *FixStateStore) All() ([]FixRecord, error) {
	unlock := lockFile(s.path)
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Fixes, nil
}

// Get returns the record for an issue id.
func (s *FixStateStore) Get(issueID string) (FixRecord, error) {
	all, err := s.All()
	if err != nil {
		return FixRecord{}, err
	}
	for _, rec := range all {
		if rec.IssueID == issueID {
			return rec, nil
		}
	}
	return FixRecord{}, fmt.Errorf("%w: %q", ErrFixNotFound, issueID)
}

// Upsert inserts or replaces the record keyed by issue id.
func (s *FixStateStore) Upsert(rec FixRecord) error {
	if rec.IssueID == "" {
		return fmt.Errorf("upserting fix record: issue id must not be empty")
	}

	unlock := lockFile(s.path)
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range doc.Fixes {
		if doc.Fixes[i].IssueID == rec.IssueID {
			doc.Fixes[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Fixes = append(doc.Fixes, rec)
	}
	return writeJSONAtomic(s.path, doc)
}

// Delete removes the record for an issue id; missing records are a no-op
// so failed-fix cleanup stays idempotent.
func (s *FixStateStore) Delete(issueID string) error {
	unlock := lockFile(s.path)
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	for i := range doc.Fixes {
		if doc.Fixes[i].IssueID == issueID {
			doc.Fixes = append(doc.Fixes[:i], doc.Fixes[i+1:]...)
			return writeJSONAtomic(s.path, doc)
		}
	}
	return nil
}
