package backend

import (
	"context"
	"sync"

	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// registry is the process-wide plugin registry, mirroring juicefs's
// pkg/meta.metaDrivers map and rclone's fs.Register.
var (
	mu      sync.Mutex
	plugins = make(map[string]BackendPlugin)
)

// Register installs a backend plugin under its own Name(). Re-registering
// the same name overwrites the previous registration, matching the
// registries this was grounded on (rclone's fs.Register, juicefs's
// meta.Register).
func Register(p BackendPlugin) {
	mu.Lock()
	defer mu.Unlock()
	plugins[p.Name()] = p
}

// Lookup returns the plugin registered under name, if any.
func Lookup(name string) (BackendPlugin, bool) {
	mu.Lock()
	defer mu.Unlock()
	p, ok := plugins[name]
	return p, ok
}

// New parses uri and dispatches construction to the matching registered
// plugin.
func New(ctx context.Context, rawURI string, config map[string]value.Value, readOnly bool) (Backend, error) {
	u, err := ParseURI(rawURI)
	if err != nil {
		return nil, err
	}
	p, ok := Lookup(u.Backend)
	if !ok {
		return nil, rherr.New(rherr.Invalid, "unknown backend plugin %q", u.Backend)
	}
	return p.New(ctx, u, config, readOnly)
}
