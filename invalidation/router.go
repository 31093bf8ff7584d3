package invalidation

import (
	"strings"
)

// IDPlaceholder in a pattern is replaced with the entity id on resolution.
const IDPlaceholder = "{id}"

/*
Router maps an entity type to the key patterns that depend on it.

	project  → projectDetails:, projectList:, dashboardStats:

The table is fixed at construction. Unknown entity types resolve to nothing.
*/
type Router struct {
	table map[string][]string
}

// NewRouter copies table.
func NewRouter(table map[string][]string) *Router {
	r := &Router{table: make(map[string][]string, len(table))}
	for entity, patterns := range table {
		r.table[entity] = append([]string(nil), patterns...)
	}
	return r
}

// Resolve returns one matcher per pattern registered for entityType.
func (r *Router) Resolve(entityType, entityID string) []Matcher {
	patterns := r.table[entityType]
	if len(patterns) == 0 {
		return nil
	}

	matchers := make([]Matcher, 0, len(patterns))
	for _, p := range patterns {
		matchers = append(matchers, ParsePattern(strings.ReplaceAll(p, IDPlaceholder, entityID)))
	}
	return matchers
}

// EntityTypes lists the configured entity types in no particular order.
func (r *Router) EntityTypes() []string {
	out := make([]string, 0, len(r.table))
	for k := range r.table {
		out = append(out, k)
	}
	return out
}

// DefaultTable is the relationship table of the project-management domain.
// A change to an entity makes the detail and list views that show it stale,
// along with the dashboard aggregates built from it.
func DefaultTable() map[string][]string {
	return map[string][]string{
		"project":  {"projectDetails:", "projectList:", "dashboardStats:"},
		"task":     {"taskDetails:", "taskList:", "projectDetails:", "dashboardStats:"},
		"comment":  {"commentList:", "taskDetails:"},
		"user":     {"userProfile:", "dashboardStats:"},
		"document": {"documentDetails:", "documentList:", "searchResults:"},
	}
}
