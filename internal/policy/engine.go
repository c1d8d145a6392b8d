// Package policy evaluates Rego routing policies with OPA.
package policy

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/rego"
)

// RoutingQuery is the rule every routing policy must define: a set of role names.
const RoutingQuery = "data.routing.match"

// Engine is the OPA routing policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query(RoutingQuery),
		rego.Module("routing.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// LoadEngine reads a policy file and prepares it.
func LoadEngine(ctx context.Context, path string) (*Engine, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	return NewEngine(ctx, string(content))
}

// MatchedRoles returns the sorted role names the policy selects for text.
// The policy sees input.query as the lower-cased query text.
func (e *Engine) MatchedRoles(ctx context.Context, text string) ([]string, error) {
	input := map[string]interface{}{"query": strings.ToLower(text)}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// Undefined rule, nothing matched.
		return nil, nil
	}

	set, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("routing.match must be a set of strings, got %T", results[0].Expressions[0].Value)
	}

	roles := make([]string, 0, len(set))
	for _, v := range set {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("routing.match contains non-string %v", v)
		}
		roles = append(roles, s)
	}
	sort.Strings(roles)
	return roles, nil
}

// DefaultRoutingPolicy mirrors the built-in keyword table.
const DefaultRoutingPolicy = `
package routing

finance_terms := {"finance", "stock", "market", "investment", "money", "trading", "economy", "business", "financial"}

technical_terms := {"programming", "code", "software", "technology", "python", "javascript", "algorithm", "database", "api"}

match["finance_expert"] {
	term := finance_terms[_]
	contains(input.query, term)
}

match["technical_expert"] {
	term := technical_terms[_]
	contains(input.query, term)
}
`
