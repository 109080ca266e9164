package enrich

import (
	"math"
	"strconv"
	"strings"

	"github.com/robinhood-suite/robinhood4-sub002/internal/posix"
	"github.com/robinhood-suite/robinhood4-sub002/internal/sstack"
	"github.com/robinhood-suite/robinhood4-sub002/internal/value"
)

// Retention is the retention-policy posix_extension enricher: it
// reads a configurable user xattr and computes trusted.expiration_date,
// keeping the maximum if one already exists.
type Retention struct {
	// XattrName defaults to "user.expires".
	XattrName string
}

func (r *Retention) Name() string { return "retention" }

func (r *Retention) xattrName() string {
	if r.XattrName == "" {
		return "user.expires"
	}
	return r.XattrName
}

// Enrich computes trusted.expiration_date from the configured xattr's
// value: "inf", "+N" (relative to mtime, saturating on overflow), or
// "N" (absolute unix seconds).
func (r *Retention) Enrich(info posix.EntryInfo, flags posix.EnrichFlags, arena *sstack.Arena) (map[string]value.Value, error) {
	raw, ok := info.InodeXattrsSoFar[r.xattrName()]
	if !ok {
		return nil, nil
	}
	s := strings.TrimSpace(raw.Str)
	if s == "" {
		return nil, nil
	}

	var expiry int64
	switch {
	case s == "inf":
		expiry = math.MaxInt64
	case strings.HasPrefix(s, "+"):
		n, err := strconv.ParseInt(s[1:], 10, 64)
		if err != nil {
			return nil, nil
		}
		expiry = saturatingAdd(info.Statx.Mtime.Sec, n)
	default:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, nil
		}
		expiry = n
	}

	if existing, ok := info.InodeXattrsSoFar["trusted.expiration_date"]; ok && existing.Tag == value.TagInt64 && existing.I64 > expiry {
		expiry = existing.I64
	}

	return map[string]value.Value{
		"trusted.expiration_date": value.Int64(expiry),
	}, nil
}

func saturatingAdd(a, b int64) int64 {
	sum := a + b
	if b > 0 && sum < a {
		return math.MaxInt64
	}
	if b < 0 && sum > a {
		return math.MinInt64
	}
	return sum
}
