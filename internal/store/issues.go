package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/roverhq/rover/internal/logging"
)

// issuesVersion is the schema version stamped into issues.json.
const issuesVersion = 1

// ErrIssueNotFound is returned when an issue id or ticket id resolves to
// nothing in the store.
var ErrIssueNotFound = errors.New("issue not found")

// issuesFile is the on-disk shape of issues.json.
type issuesFile struct {
	Version    int             `json:"version"`
	Issues     []ApprovedIssue `json:"issues"`
	LastScanAt time.Time       `json:"lastScanAt"`
}

// IssueStore is the approved-issue database for one target repository.
// All mutations run load → modify → atomic write under the per-file lock.
type IssueStore struct {
	path   string
	logger *log.Logger
}

// NewIssueStore returns a store bound to targetPath's issues.json.
func NewIssueStore(targetPath string, logger *log.Logger) *IssueStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &IssueStore{path: IssuesPath(targetPath), logger: logger}
}

// load reads the issue file, treating a missing file as empty and a
// corrupt file as empty-with-warning. Callers must hold the file lock
// when they intend to write the result back.
func (s *IssueStore) load() (*issuesFile, error) {
	doc := &issuesFile{Version: issuesVersion}
	_, err := readJSON(s.path, doc)
	if err != nil {
		if errors.Is(err, errCorrupt) {
			s.logger.Warn("issue store corrupt, starting fresh", "path", s.path, "error", err)
			return &issuesFile{Version: issuesVersion}, nil
		}
		return nil, err
	}
	if doc.Version == 0 {
		doc.Version = issuesVersion
	}
	return doc, nil
}

// All returns every issue in the store, including dismissed ones.
func (s *IssueStore) All() ([]ApprovedIssue, error) {
	unlock := lockFile(s.path)
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Issues, nil
}

// Open returns issues that are not dismissed, i.e. everything a fix or
// consolidate run should consider.
func (s *IssueStore) Open() ([]ApprovedIssue, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	open := make([]ApprovedIssue, 0, len(all))
	for _, issue := range all {
		if issue.Status != StatusWontFix {
			open = append(open, issue)
		}
	}
	return open, nil
}

// WontFix returns dismissed issues, used as scanner suppression hints.
func (s *IssueStore) WontFix() ([]ApprovedIssue, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	var dismissed []ApprovedIssue
	for _, issue := range all {
		if issue.Status == StatusWontFix {
			dismissed = append(dismissed, issue)
		}
	}
	return dismissed, nil
}

// LastScanAt returns when any agent last completed a scan against this
// store; zero if never.
func (s *IssueStore) LastScanAt() (time.Time, error) {
	unlock := lockFile(s.path)
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return time.Time{}, err
	}
	return doc.LastScanAt, nil
}

// Get resolves an issue by store id or ticket id (ISSUE-NNN).
func (s *IssueStore) Get(id string) (ApprovedIssue, error) {
	all, err := s.All()
	if err != nil {
		return ApprovedIssue{}, err
	}
	for _, issue := range all {
		if issue.ID == id || issue.TicketID() == id {
			return issue, nil
		}
	}
	return ApprovedIssue{}, fmt.Errorf("%w: %q", ErrIssueNotFound, id)
}

// Add inserts issues, skipping any whose id is already present (earliest
// insert wins) and returns how many were actually added.
func (s *IssueStore) Add(issues ...ApprovedIssue) (int, error) {
	unlock := lockFile(s.path)
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return 0, err
	}

	existing := make(map[string]bool, len(doc.Issues))
	for _, issue := range doc.Issues {
		existing[issue.ID] = true
	}

	added := 0
	for _, issue := range issues {
		if issue.ID == "" || existing[issue.ID] {
			s.logger.Debug("skipping duplicate issue on insert", "id", issue.ID)
			continue
		}
		if issue.Status == "" {
			issue.Status = StatusOpen
		}
		doc.Issues = append(doc.Issues, issue)
		existing[issue.ID] = true
		added++
	}
	if added == 0 {
		return 0, nil
	}
	return added, writeJSONAtomic(s.path, doc)
}

// Has reports whether an issue with the given store id exists.
func (s *IssueStore) Has(id string) (bool, error) {
	all, err := s.All()
	if err != nil {
		return false, err
	}
	for _, issue := range all {
		if issue.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// Remove deletes issues by store id or ticket id. Unknown ids return
// ErrIssueNotFound; known ids named before the unknown one are still
// removed.
func (s *IssueStore) Remove(ids ...string) error {
	unlock := lockFile(s.path)
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	for _, id := range ids {
		idx := findIssue(doc.Issues, id)
		if idx < 0 {
			return fmt.Errorf("%w: %q", ErrIssueNotFound, id)
		}
		doc.Issues = append(doc.Issues[:idx], doc.Issues[idx+1:]...)
	}
	return writeJSONAtomic(s.path, doc)
}

// MarkWontFix dismisses issues by store id or ticket id. Dismissed issues
// stay in the store as suppression hints but drop out of Open listings.
func (s *IssueStore) MarkWontFix(ids ...string) error {
	unlock := lockFile(s.path)
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	for _, id := range ids {
		idx := findIssue(doc.Issues, id)
		if idx < 0 {
			return fmt.Errorf("%w: %q", ErrIssueNotFound, id)
		}
		doc.Issues[idx].Status = StatusWontFix
	}
	return writeJSONAtomic(s.path, doc)
}

// SetTicketPath backfills the ticket path on an already-inserted issue.
func (s *IssueStore) SetTicketPath(id, ticketPath string) error {
	unlock := lockFile(s.path)
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	idx := findIssue(doc.Issues, id)
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrIssueNotFound, id)
	}
	doc.Issues[idx].TicketPath = ticketPath
	return writeJSONAtomic(s.path, doc)
}

// TouchLastScan records a completed scan timestamp.
func (s *IssueStore) TouchLastScan(at time.Time) error {
	unlock := lockFile(s.path)
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.LastScanAt = at
	return writeJSONAtomic(s.path, doc)
}

// Consolidate replaces the issues named by originalIDs with a single
// merged issue in one atomic write. Unknown originals abort the swap
// before anything is modified.
func (s *IssueStore) Consolidate(originalIDs []string, merged ApprovedIssue) error {
	unlock := lockFile(s.path)
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	remove := make(map[int]bool, len(originalIDs))
	for _, id := range originalIDs {
		idx := findIssue(doc.Issues, id)
		if idx < 0 {
			return fmt.Errorf("consolidate: %w: %q", ErrIssueNotFound, id)
		}
		remove[idx] = true
	}

	kept := make([]ApprovedIssue, 0, len(doc.Issues)-len(remove)+1)
	for i, issue := range doc.Issues {
		if !remove[i] {
			kept = append(kept, issue)
		}
	}
	if merged.Status == "" {
		merged.Status = StatusOpen
	}
	doc.Issues = append(kept, merged)
	return writeJSONAtomic(s.path, doc)
}

// findIssue locates an issue by store id or ticket id; -1 when absent.
func findIssue(issues []ApprovedIssue, id string) int {
	for i, issue := range issues {
		if issue.ID == id || issue.TicketID() == id {
			return i
		}
	}
	return -1
}
