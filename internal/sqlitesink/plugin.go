package sqlitesink

import (
	"context"

	"github.com/robinhood-suite/robinhood4-sub002/internal/backend"
	"github.com/robinhood-suite/robinhood4-sub002/internal/filter"
	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

const pluginName = "sqlite"

type plugin struct{}

func init() { backend.Register(plugin{}) }

func (plugin) Name() string    { return pluginName }
func (plugin) Version() string { return "1.0" }

func (plugin) Capabilities() backend.Capability {
	return backend.CapSyncOps | backend.CapBranchOps | backend.CapAttributeOps
}

func (plugin) New(ctx context.Context, u backend.URI, config map[string]value.Value, readOnly bool) (backend.Backend, error) {
	return New(ctx, u, config, readOnly)
}

func (plugin) CheckValidToken(token string) backend.TokenKind { return backend.TokenUnknown }

func (plugin) BuildFilter(argv []string, i *int, needPrefetch *bool) (filter.Filter, error) {
	return filter.Filter{}, rherr.New(rherr.NotSupported, "sqlite plugin does not build CLI predicates")
}

func (plugin) FillEntryInfo(buf []byte, e fsentry.Entry, directive string) int { return -1 }

func (plugin) DeleteEntry(ctx context.Context, e fsentry.Entry) error { return nil }
