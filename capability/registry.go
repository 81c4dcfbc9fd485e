// Package capability holds the process-lifetime registry of executable skills
// and the resolution chain that maps loosely-specified capability strings onto a
// registered handler.
package capability

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrUnresolved is only possible when zero capabilities are registered: the
// resolution chain otherwise always lands on some handler.
var ErrUnresolved = errors.New("capability: no handler registered")

// Context is the structured input a handler receives.
type Context struct {
	JobID        string          `json:"jobId"`
	OfferingSlug string          `json:"offeringSlug"`
	BuyerAgentID string          `json:"buyerAgentId"`
	Requirements json.RawMessage `json:"requirements"`
}

// Handler executes one capability invocation.
type Handler func(ctx context.Context, in Context) (json.RawMessage, error)

// Definition describes a registered capability.
type Definition struct {
	Name     string
	Category string
	Timeout  time.Duration
	Handler  Handler
}

// Registry maps capability ids to handlers. Instances are injected, never
// package-level, so tests construct fresh ones without cross-test leakage.
// Entries live for the process lifetime and are re-registered on restart.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register stores a handler under id. Later registrations for the same id
// replace earlier ones.
func (r *Registry) Register(id string, def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[id] = def
}

func (r *Registry) Get(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	return def, ok
}

// ids returns registered ids in sorted order so last-resort resolution is
// deterministic.
func (r *Registry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for id := range r.defs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) category(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defs[id].Category
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
