package playbackprovider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Strob0t/requestline/internal/resilience"
)

// Factory is a constructor function that creates a new Provider instance.
type Factory func(deps Deps) (Provider, error)

// Deps carries what a provider adapter needs from the host process.
// Breakers and Observer are optional.
type Deps struct {
	Config      map[string]string
	Credentials CredentialSource
	Breakers    *resilience.Registry
	Observer    CallObserver
}

// CallObserver records the latency and outcome of each provider call.
type CallObserver interface {
	AdapterCall(ctx context.Context, op string, start time.Time, err error)
}

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a playback provider factory available by name.
// It is typically called from an init() function in the adapter package.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("playbackprovider: duplicate registration for %q", name))
	}
	factories[name] = factory
}

// New creates a Provider by name using the registered factory.
func New(name string, deps Deps) (Provider, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("playbackprovider: unknown provider %q", name)
	}
	return factory(deps)
}

// Available returns the sorted names of all registered providers.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
