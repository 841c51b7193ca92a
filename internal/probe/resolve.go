package probe

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Resolution classes reported by Resolve.
const (
	Resolves     = "RESOLVES"
	NoAddress    = "NO_A_RECORD"
	NXDomain     = "NXDOMAIN"
	ResolverFail = "SERVFAIL_or_TIMEOUT"
	InvalidName  = "INVALID_NAME"
)

// Resolution describes how a site's host name resolves. It is a diagnostic
// aid for operators and plays no part in a site's online/offline status.
type Resolution struct {
	Host  string
	IPs   []net.IP
	CNAME string
	Class string
	Err   string
}

// Resolve looks up host with r (the OS resolver when nil). The caller's
// context bounds the lookups.
func Resolve(ctx context.Context, r *net.Resolver, host string) Resolution {
	res := Resolution{Host: strings.TrimSpace(host)}
	if res.Host == "" || strings.Contains(res.Host, "://") {
		res.Class = InvalidName
		return res
	}
	if r == nil {
		r = net.DefaultResolver
	}

	ips, err := r.LookupIP(ctx, "ip", res.Host)
	switch {
	case err == nil && len(ips) > 0:
		res.IPs = ips
		res.Class = Resolves
	case err != nil:
		res.Err = err.Error()
		res.Class = ResolverFail
		var de *net.DNSError
		if errors.As(err, &de) && de.IsNotFound {
			res.Class = NXDomain
		}
	default:
		res.Class = NoAddress
	}

	if cname, err := r.LookupCNAME(ctx, res.Host); err == nil && !strings.EqualFold(cname, res.Host+".") {
		res.CNAME = strings.TrimSuffix(cname, ".")
	}

	// A zone with name servers but no address is reachable by name only.
	if res.Class == NXDomain {
		if ns, err := r.LookupNS(ctx, res.Host); err == nil && len(ns) > 0 {
			res.Class = NoAddress
		}
	}
	return res
}
