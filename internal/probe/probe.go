// Package probe decides which creators are live on a streaming service.
//
// Each service is a Prober. Probers never return errors: a username whose
// check fails is left out of the result, exactly like a creator who is
// offline, and is checked again on the next cycle.
package probe

import (
	"context"
	"fmt"
	"sync"

	"github.com/ilinovom/stream-announce-bot/internal/model"
)

// Prober checks a set of usernames of one service.
type Prober interface {
	// Service returns the service this prober handles.
	Service() model.Service

	// Probe returns a descriptor for every username found live. An empty
	// input returns an empty map without any network activity.
	Probe(ctx context.Context, usernames []string) map[string]model.LiveDescriptor
}

// Registry manages the probers by service.
type Registry struct {
	mu      sync.RWMutex
	probers map[model.Service]Prober
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		probers: make(map[model.Service]Prober),
	}
}

// Register adds or replaces the prober for its service.
func (r *Registry) Register(p Prober) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probers[p.Service()] = p
}

// Get retrieves the prober for a service.
func (r *Registry) Get(service model.Service) (Prober, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.probers[service]
	if !ok {
		return nil, fmt.Errorf("no prober for service: %s", service)
	}
	return p, nil
}
