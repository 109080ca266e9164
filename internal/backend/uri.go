package backend

import (
	"net/url"
	"strings"

	"github.com/robinhood-suite/robinhood4-sub002/internal/rherr"
)

// URI is a parsed "rbh:<backend>:[authority]/fsname[?path]" reference.
// An empty Authority means "use the configured address" for that
// backend.
type URI struct {
	Backend   string
	Authority string
	Fsname    string
	Path      string
	RawQuery  string
}

// ParseURI parses a robinhood URI of the form
// "rbh:<backend>:[authority]/fsname[?path]".
func ParseURI(raw string) (URI, error) {
	const scheme = "rbh:"
	if !strings.HasPrefix(raw, scheme) {
		return URI{}, rherr.New(rherr.Invalid, "uri %q missing rbh: scheme", raw)
	}
	rest := raw[len(scheme):]
	sep := strings.Index(rest, ":")
	if sep < 0 {
		return URI{}, rherr.New(rherr.Invalid, "uri %q missing backend separator", raw)
	}
	backendName := rest[:sep]
	tail := rest[sep+1:]
	if backendName == "" {
		return URI{}, rherr.New(rherr.Invalid, "uri %q has empty backend name", raw)
	}

	var authority, pathAndQuery string
	switch {
	case strings.HasPrefix(tail, "//"):
		rem := tail[2:]
		if i := strings.Index(rem, "/"); i >= 0 {
			authority = rem[:i]
			pathAndQuery = rem[i:]
		} else {
			authority = rem
		}
	default:
		pathAndQuery = tail
	}
	if !strings.HasPrefix(pathAndQuery, "/") && pathAndQuery != "" {
		pathAndQuery = "/" + pathAndQuery
	}

	u, err := url.Parse(pathAndQuery)
	if err != nil {
		return URI{}, rherr.New(rherr.Invalid, "uri %q has malformed path: %s", raw, err)
	}

	fsname := strings.TrimPrefix(u.Path, "/")
	return URI{
		Backend:   backendName,
		Authority: authority,
		Fsname:    fsname,
		Path:      u.Path,
		RawQuery:  u.RawQuery,
	}, nil
}
