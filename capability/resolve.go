package capability

import (
	"log"
	"strings"
)

// categoryFallbacks routes category-level requests that have no dedicated
// handler onto the nearest registered capability. Availability beats precision
// here: a buyer asking for "trading" gets the analytics handler rather than a
// hard failure.
var categoryFallbacks = map[string]string{
	"trading":    "trend-analysis",
	"research":   "trend-analysis",
	"analytics":  "trend-analysis",
	"marketing":  "content-generation",
	"social":     "content-generation",
	"creative":   "image-generation",
	"art":        "image-generation",
	"writing":    "content-generation",
	"automation": "task-automation",
}

// Resolve maps a requested capability or category onto a registered handler id.
// Strategies are tried in order: exact id match, substring match in either
// direction, static category fallback, then the first registered handler as a
// last resort. Each non-exact decision is logged so the precedence stays
// auditable.
func (r *Registry) Resolve(requested string) (string, error) {
	ids := r.ids()
	if len(ids) == 0 {
		return "", ErrUnresolved
	}

	want := normalize(requested)

	if _, ok := r.Get(want); ok {
		return want, nil
	}

	if want != "" {
		for _, id := range ids {
			if strings.Contains(id, want) || strings.Contains(want, id) {
				log.Printf("[capability] resolve %q -> %q via substring match", requested, id)
				return id, nil
			}
		}

		if target, ok := categoryFallbacks[want]; ok {
			if _, registered := r.Get(target); registered {
				log.Printf("[capability] resolve %q -> %q via category fallback", requested, target)
				return target, nil
			}
		}

		// Match a fallback target's registered category as a near miss.
		for _, id := range ids {
			if normalize(r.category(id)) == want {
				log.Printf("[capability] resolve %q -> %q via registered category", requested, id)
				return id, nil
			}
		}
	}

	log.Printf("[capability] resolve %q -> %q as last resort", requested, ids[0])
	return ids[0], nil
}
