// Package catalog defines review agents and the registry that holds them.
//
// An agent is a named reviewer persona: a system prompt that tells the
// scanner what class of problems to hunt for, plus glob patterns that
// bound which files fall inside its scope. The registry seeds itself
// with the built-in agents and layers user-defined agents from
// configuration on top.
package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
)

var (
	// ErrNotFound is returned when an agent ID is not registered.
	ErrNotFound = errors.New("agent not found")

	// ErrDuplicateID is returned when registering an agent whose ID already exists.
	ErrDuplicateID = errors.New("agent ID already registered")

	// ErrInvalidID is returned when an agent ID does not match the allowed format.
	ErrInvalidID = errors.New("invalid agent ID")
)

// agentIDRe validates agent IDs: lowercase alphanumeric segments
// separated by single hyphens (e.g. "security", "error-handling").
var agentIDRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// AgentSpec describes a single review agent.
type AgentSpec struct {
	// ID is the stable identifier used on the command line and in state files.
	ID string

	// Name is the human-readable display name.
	Name string

	// Description is a one-line summary shown by `rover agents`.
	Description string

	// SystemPrompt is the persona and review charter injected into the
	// scanner prompt verbatim.
	SystemPrompt string

	// FilePatterns are doublestar globs that define the agent's scope,
	// evaluated against paths relative to the scan target. A pattern
	// prefixed with "!" excludes matches. Empty means the whole tree.
	FilePatterns []string

	// Builtin reports whether the agent ships with rover (false for
	// agents defined in rover.toml).
	Builtin bool
}

// Validate checks that the spec is well-formed enough to register.
func (s AgentSpec) Validate() error {
	if !agentIDRe.MatchString(s.ID) {
		return fmt.Errorf("%w: %q (want lowercase alphanumerics and hyphens)", ErrInvalidID, s.ID)
	}
	if s.Name == "" {
		return fmt.Errorf("agent %q: name must not be empty", s.ID)
	}
	if s.SystemPrompt == "" {
		return fmt.Errorf("agent %q: system prompt must not be empty", s.ID)
	}
	return nil
}

// Registry holds the set of available agents. It is safe for concurrent
// reads after registration is complete.
type Registry struct {
	agents map[string]AgentSpec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]AgentSpec)}
}

// Register adds an agent to the registry.
func (r *Registry) Register(spec AgentSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if _, exists := r.agents[spec.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateID, spec.ID)
	}
	r.agents[spec.ID] = spec
	return nil
}

// Get returns the agent with the given ID.
func (r *Registry) Get(id string) (AgentSpec, error) {
	spec, ok := r.agents[id]
	if !ok {
		return AgentSpec{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return spec, nil
}

// Has reports whether an agent with the given ID is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.agents[id]
	return ok
}

// List returns all registered agents sorted by ID.
func (r *Registry) List() []AgentSpec {
	specs := make([]AgentSpec, 0, len(r.agents))
	for _, spec := range r.agents {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs
}

// IDs returns all registered agent IDs sorted alphabetically.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
