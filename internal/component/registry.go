// internal/component/registry.go
//
// Component registry (cycle-free).
//
// Each concrete component lives under components/<name> and calls
// component.Register() in an init() function.  cmd/web hands every
// component the root router and the shared Deps.

package component

import (
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/concierge/internal/config"
	"github.com/yanizio/concierge/internal/middleware"
	"github.com/yanizio/concierge/internal/relay"
)

// Deps are the process-wide collaborators handed to every component.
type Deps struct {
	Config    *config.Config
	Relay     *relay.Handler
	RateStore middleware.RateLimitStore // nil when rate limiting is off
}

// Component contract.
//
// Mount() registers every endpoint the component owns on r, e.g:
//
//	r.Route("/api/thing", func(api chi.Router) { ... })
//
// Paths must not collide with other components.
type Component interface {
	Name() string
	Mount(r chi.Router, d Deps)
}

var (
	mu       sync.RWMutex
	registry = map[string]Component{}
)

// Register is invoked from component init() functions.
func Register(c Component) {
	mu.Lock()
	registry[c.Name()] = c
	mu.Unlock()
}

// All returns every registered component sorted by name.
func All() []Component {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Component, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
