package llm

import (
	"sort"

	"github.com/xiaot623/conclave/internal/domain"
)

// Registry maps roles to responders. It is read-only after construction.
type Registry struct {
	responders map[domain.RoleName]Responder
}

// NewRegistry copies responders into a new registry. Nil entries are skipped.
func NewRegistry(responders map[domain.RoleName]Responder) *Registry {
	m := make(map[domain.RoleName]Responder, len(responders))
	for role, r := range responders {
		if r != nil {
			m[role] = r
		}
	}
	return &Registry{responders: m}
}

// Get returns the responder for role.
func (r *Registry) Get(role domain.RoleName) (Responder, bool) {
	if r == nil {
		return nil, false
	}
	resp, ok := r.responders[role]
	return resp, ok
}

// Models returns role → model identifier for every registered role.
func (r *Registry) Models() map[string]string {
	out := make(map[string]string, len(r.responders))
	for role, resp := range r.responders {
		out[string(role)] = resp.Model()
	}
	return out
}

// Roles returns the registered roles in sorted order.
func (r *Registry) Roles() []domain.RoleName {
	roles := make([]domain.RoleName, 0, len(r.responders))
	for role := range r.responders {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
