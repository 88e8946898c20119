package engine

import (
	"context"
	"sync"
)

// Skill is a single named, idempotent-by-convention step function. It
// receives the accumulated context and returns the context it produced; the
// orchestrator merges the return value over the accumulated context.
type Skill func(ctx context.Context, c Context) (Context, error)

// Compensation is a best-effort rollback action for a completed skill,
// invoked with the context snapshot at failure time when a later skill in
// the same run fails. Only the durable execution path invokes compensators.
type Compensation func(ctx context.Context, c Context) error

// Registry maps skill names to step functions, intent names to ordered skill
// chains, and skill names to optional compensators. It is constructed once
// at startup and passed to the orchestrator by reference; registration after
// execution has started is not guarded and is undefined behavior.
type Registry struct {
	mu            sync.RWMutex
	skills        map[string]Skill
	chains        map[string][]string
	compensations map[string]Compensation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		skills:        make(map[string]Skill),
		chains:        make(map[string][]string),
		compensations: make(map[string]Compensation),
	}
}

// RegisterSkill stores fn under name, silently overwriting any previous
// registration. Last writer wins.
func (r *Registry) RegisterSkill(name string, fn Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[name] = fn
}

// RegisterChain stores an ordered list of skill names under intent.
// The skills themselves may be registered later; resolution happens at
// execution time.
func (r *Registry) RegisterChain(intent string, steps []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := make([]string, len(steps))
	copy(chain, steps)
	r.chains[intent] = chain
}

// RegisterCompensation stores a rollback function for a skill.
func (r *Registry) RegisterCompensation(skill string, fn Compensation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compensations[skill] = fn
}

// ResolveSkill returns the skill registered under name.
func (r *Registry) ResolveSkill(name string) (Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.skills[name]
	if !ok {
		return nil, &NotFoundError{Kind: "skill", Name: name}
	}
	return fn, nil
}

// ResolveChain returns the ordered skill list registered under intent.
func (r *Registry) ResolveChain(intent string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain, ok := r.chains[intent]
	if !ok {
		return nil, &NotFoundError{Kind: "intent", Name: intent}
	}
	out := make([]string, len(chain))
	copy(out, chain)
	return out, nil
}

// ResolveCompensation returns the compensator registered for skill, if any.
func (r *Registry) ResolveCompensation(skill string) (Compensation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.compensations[skill]
	return fn, ok
}

// Intents returns the intent names with registered chains.
func (r *Registry) Intents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	intents := make([]string, 0, len(r.chains))
	for intent := range r.chains {
		intents = append(intents, intent)
	}
	return intents
}
