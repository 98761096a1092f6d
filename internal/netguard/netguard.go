// Package netguard validates outbound URLs supplied by users before the
// server fetches them.
package netguard

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

var (
	// ErrInvalidURL is returned when the URL cannot be parsed or has no host.
	ErrInvalidURL = errors.New("invalid url")

	// ErrUnsupportedScheme is returned for any scheme other than http and https.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")

	// ErrBlockedHost is returned for loopback, unspecified, link-local,
	// mDNS and private-range hosts.
	ErrBlockedHost = errors.New("blocked host")

	// ErrHostNotAllowed is returned when an allow-list is configured and the
	// host matches none of its entries.
	ErrHostNotAllowed = errors.New("host not allowed")
)

var blockedHosts = map[string]struct{}{
	"localhost": {},
	"127.0.0.1": {},
	"0.0.0.0":   {},
	"::1":       {},
	"::":        {},
}

// Guard checks URLs against the deny-list and an optional allow-list.
// A zero Guard has no allow-list.
type Guard struct {
	allowed []string
}

// New creates a Guard. Each allowed entry is a hostname; the host of a
// checked URL must equal an entry or be a subdomain of one. Empty entries
// are ignored, and no entries means any public host is accepted.
func New(allowed ...string) *Guard {
	g := &Guard{}
	for _, host := range allowed {
		host = normalizeHost(host)
		if host != "" {
			g.allowed = append(g.allowed, host)
		}
	}
	return g
}

// Allowed returns the normalized allow-list.
func (g *Guard) Allowed() []string {
	return append([]string(nil), g.allowed...)
}

// Check parses rawURL and validates it.
func (g *Guard) Check(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if err := g.CheckURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

// CheckURL validates an already parsed URL. It is also run against every
// redirect target.
func (g *Guard) CheckURL(u *url.URL) error {
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	host := normalizeHost(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if IsBlockedHost(host) {
		return fmt.Errorf("%w: %s", ErrBlockedHost, host)
	}
	if !g.isAllowed(host) {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}
	return nil
}

func (g *Guard) isAllowed(host string) bool {
	if g == nil || len(g.allowed) == 0 {
		return true
	}
	for _, entry := range g.allowed {
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

// IsBlockedHost reports whether host names the local machine, an mDNS
// .local name, or an address that is not publicly routable: loopback,
// unspecified, link-local (including 169.254.169.254 cloud metadata),
// RFC 1918 private and IPv6 unique local fc00::/7.
func IsBlockedHost(host string) bool {
	host = normalizeHost(host)
	if _, ok := blockedHosts[host]; ok {
		return true
	}
	if strings.HasSuffix(host, ".local") {
		return true
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsUnspecified() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast()
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	return strings.TrimSuffix(host, ".")
}
