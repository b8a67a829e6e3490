// Package device derives the privacy-preserving device attributes stored on a
// session family: a stable device hash, a masked IP network, and the coarse
// device/location classification surfaced on session listings.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"net/netip"
	"strings"
)

// Info carries the raw client attributes captured at login or refresh.
type Info struct {
	UserAgent string
	IPAddress string
}

// Type is the coarse device class parsed from a user agent.
type Type string

const (
	TypeMobile  Type = "mobile"
	TypeTablet  Type = "tablet"
	TypeDesktop Type = "desktop"
)

// Location is the coarse network bucket derived from a client IP.
type Location string

const (
	LocationLocal    Location = "local"
	LocationExternal Location = "external"
)

// Hash returns a stable SHA-256 hex digest of the user agent and the client's
// masked IP network. Host bits never enter the hash, so a device keeps its
// hash across DHCP churn inside one network.
func Hash(info Info) string {
	h := sha256.Sum256([]byte(info.UserAgent + "\n" + MaskIP(info.IPAddress)))
	return hex.EncodeToString(h[:])
}

// MaskIP masks the host bits of ip for privacy: /24 for IPv4, /64 for IPv6.
// Returns the CIDR string, or "" if ip does not parse.
func MaskIP(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return ""
	}
	bits := 64
	if addr.Is4() || addr.Is4In6() {
		addr = addr.Unmap()
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return ""
	}
	return prefix.String()
}

// ParseType classifies a user agent as mobile, tablet, or desktop.
// Tablets are checked first: tablet user agents usually also say "Mobile".
func ParseType(userAgent string) Type {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return TypeTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return TypeMobile
	default:
		return TypeDesktop
	}
}

// Locate buckets an IP or CIDR as local (loopback, link-local, or private
// range) or external. Unparseable input buckets as external.
func Locate(ipOrCIDR string) Location {
	s := strings.TrimSpace(ipOrCIDR)
	if prefix, err := netip.ParsePrefix(s); err == nil {
		s = prefix.Addr().String()
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return LocationExternal
	}
	if addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsPrivate() {
		return LocationLocal
	}
	return LocationExternal
}
