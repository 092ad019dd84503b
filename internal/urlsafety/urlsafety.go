// Package urlsafety implements the SSRF-safe URL acceptance predicate: the
// scraper must refuse any URL that could reach an internal, loopback,
// link-local, or cloud-metadata address.
package urlsafety

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// ErrUnsafeURL is returned for any URL that fails the predicate.
var ErrUnsafeURL = errors.New("urlsafety: unsafe url")

const maxURLLength = 2048

var blockedHostnames = map[string]struct{}{
	"localhost":               {},
	"metadata.google.internal": {},
}

var privateCIDRs = mustParseCIDRs(
	"127.0.0.0/8",
	"0.0.0.0/8",
	"169.254.0.0/16",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic("urlsafety: invalid cidr literal " + c)
		}
		out = append(out, n)
	}
	return out
}

// Resolver looks up the IP addresses for a hostname. Production code uses
// net.DefaultResolver; tests substitute a fixed mapping so the predicate is
// exercised without a real DNS lookup.
type Resolver interface {
	LookupIPAddr(host string) ([]net.IP, error)
}

type netResolver struct{}

func (netResolver) LookupIPAddr(host string) ([]net.IP, error) {
	addrs, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	return addrs, nil
}

// DefaultResolver performs real DNS lookups via the standard library.
var DefaultResolver Resolver = netResolver{}

// Check validates rawURL against the SSRF predicate: scheme must be http or
// https; length must be <= 2048 bytes; the host must not be a blocked
// hostname and must not resolve to a loopback, link-local, private, or
// cloud-metadata address.
func Check(rawURL string, resolver Resolver) error {
	if len(rawURL) > maxURLLength {
		return ErrUnsafeURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return ErrUnsafeURL
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeURL
	}

	host := u.Hostname()
	if host == "" {
		return ErrUnsafeURL
	}
	if _, blocked := blockedHostnames[strings.ToLower(host)]; blocked {
		return ErrUnsafeURL
	}

	if ip := net.ParseIP(host); ip != nil {
		if !ipIsSafe(ip) {
			return ErrUnsafeURL
		}
		return nil
	}

	if resolver == nil {
		resolver = DefaultResolver
	}
	ips, err := resolver.LookupIPAddr(host)
	if err != nil {
		return ErrUnsafeURL
	}
	if len(ips) == 0 {
		return ErrUnsafeURL
	}
	for _, ip := range ips {
		if !ipIsSafe(ip) {
			return ErrUnsafeURL
		}
	}
	return nil
}

func ipIsSafe(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return false
	}
	for _, n := range privateCIDRs {
		if n.Contains(ip) {
			return false
		}
	}
	return true
}
