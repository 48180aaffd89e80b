package ai

import (
	"strings"
	"sync"
)

// ModelTable maps the symbolic model names callers send to concrete
// deployment ids. Callers never need to know deployment-specific names;
// anything unknown resolves to the configured default.
type ModelTable struct {
	mu          sync.RWMutex
	deployments map[string]string
	fallback    string
}

func NewModelTable(fallback string) *ModelTable {
	return &ModelTable{
		deployments: make(map[string]string),
		fallback:    fallback,
	}
}

func (t *ModelTable) Register(name, deployment string) {
	name = strings.ToLower(strings.TrimSpace(name))
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deployments[name] = deployment
}

func (t *ModelTable) Resolve(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	t.mu.RLock()
	d, ok := t.deployments[name]
	t.mu.RUnlock()
	if !ok || d == "" {
		return t.fallback
	}
	return d
}
