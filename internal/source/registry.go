package source

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a Connector for a Config. Backends register their
// factory for a given kind (e.g. "postgres") at init time.
type Factory func(ctx context.Context, cfg Config) (Connector, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for the given source kind.
// It is typically called from connector packages' init() functions; import
// importkit/internal/source/all to wire every built-in kind.
func Register(kind string, fn Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = fn
}

// Open locates the factory for cfg.Kind and invokes it. An unregistered kind
// is an "unsupported" *ConnectionError, the same taxonomy as any other
// discovery failure.
func Open(ctx context.Context, cfg Config) (Connector, error) {
	regMu.RLock()
	fn, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, ConnErr("unsupported",
			fmt.Sprintf("no connector registered for source kind %q (known kinds: %v)", cfg.Kind, Kinds()), nil)
	}
	return fn(ctx, cfg)
}

// Kinds returns the registered source kinds, sorted.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
