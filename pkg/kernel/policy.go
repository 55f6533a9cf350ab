package kernel

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

// Predicate is one named policy rule in the stack. The expression is a CEL
// boolean over the proposal; all predicates must pass (conjunction).
type Predicate struct {
	Name string `yaml:"name" json:"name"`
	Expr string `yaml:"expr" json:"expr"`
}

// PolicyStack holds compiled predicates. Programs are compiled once at
// construction and cached; evaluation is deterministic for identical input.
type PolicyStack struct {
	mu       sync.RWMutex
	env      *cel.Env
	programs []compiledPredicate
}

type compiledPredicate struct {
	name    string
	program cel.Program
}

// NewPolicyStack compiles the predicates into a stack.
func NewPolicyStack(predicates []Predicate) (*PolicyStack, error) {
	env, err := cel.NewEnv(
		cel.Variable("proposal", cel.DynType),
		cel.Variable("evaluated_at", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: cel environment: %w", err)
	}

	s := &PolicyStack{env: env}
	for _, p := range predicates {
		ast, issues := env.Compile(p.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("policy %q: compile: %w", p.Name, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("policy %q: program: %w", p.Name, err)
		}
		s.programs = append(s.programs, compiledPredicate{name: p.Name, program: prg})
	}
	return s, nil
}

// Evaluate runs the stack against a proposal. It returns the name of the
// first failing predicate, or "" when all pass. Evaluation errors fail
// closed: the predicate counts as violated.
func (s *PolicyStack) Evaluate(p contracts.TransitionProposal) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	activation := map[string]any{
		"proposal": map[string]any{
			"subject_id":   p.SubjectID,
			"from_state":   string(p.FromState),
			"to_state":     string(p.ToState),
			"role":         p.Role,
			"jurisdiction": p.Jurisdiction,
			"policy_refs":  p.PolicyRefs,
			"risk_before":  p.Risk.Before,
			"risk_after":   p.Risk.After,
			"is_downgrade": p.FromState.IsDowngrade(p.ToState),
		},
		"evaluated_at": p.EvaluatedAt.Unix(),
	}

	for _, cp := range s.programs {
		out, _, err := cp.program.Eval(activation)
		if err != nil {
			return cp.name
		}
		allowed, ok := out.Value().(bool)
		if !ok || !allowed {
			return cp.name
		}
	}
	return ""
}
