package main

import (
	"context"

	"github.com/robinhood-suite/robinhood4-sub002/internal/fsentry"
	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
)

// noHSM is the undelete.Filesystem used by this CLI: it reports the
// restore it would have performed without calling into any concrete
// HSM backend, since the Lustre hsm_import call robinhood drives is
// explicitly out of scope for this module.
type noHSM struct{}

func (noHSM) Undelete(ctx context.Context, archiveID string, template fsentry.Statx, path string) error {
	return rherr.New(rherr.NotSupported, "no HSM backend wired: would restore archive %s to %s", archiveID, path)
}
