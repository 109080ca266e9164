package mongosink

import (
	"context"

	"github.com/robinhood-suite/robinhood4-sub002/internal/backend"
	"github.com/robinhood-suite/robinhood4-sub002/internal/filter"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// plugin is the backend.BackendPlugin registered under "mongo" and
// "mongo-gc".
type plugin struct {
	name string
	gc   bool
}

func init() {
	backend.Register(&plugin{name: pluginName})
	backend.Register(&plugin{name: pluginGCName, gc: true})
}

func (p *plugin) Name() string    { return p.name }
func (p *plugin) Version() string { return "1.0" }

func (p *plugin) Capabilities() backend.Capability {
	caps := backend.CapSyncOps | backend.CapReportOps | backend.CapAttributeOps
	if !p.gc {
		caps |= backend.CapBranchOps
	}
	return caps
}

func (p *plugin) New(ctx context.Context, u backend.URI, config map[string]value.Value, readOnly bool) (backend.Backend, error) {
	return New(ctx, u, config, readOnly, p.gc)
}

// CheckValidToken never claims a predicate token: filter-AST tokens are
// built generically by the CLI from the filter package, not delegated
// to this plugin.
func (p *plugin) CheckValidToken(token string) backend.TokenKind { return backend.TokenUnknown }

func (p *plugin) BuildFilter(argv []string, i *int, needPrefetch *bool) (filter.Filter, error) {
	return filter.Filter{}, rherr.New(rherr.NotSupported, "mongo plugin does not build CLI predicates")
}

func (p *plugin) FillEntryInfo(buf []byte, e fsentry.Entry, directive string) int { return -1 }

func (p *plugin) DeleteEntry(ctx context.Context, e fsentry.Entry) error {
	return nil
}
