package relaysession

import (
	"net"
	"strconv"
	"strings"
)

// deniedPrefixes blocks CONNECT targets that resolve into private,
// loopback, or link-local address space, so a client can't use the relay
// to reach the relay's own internal network.
var deniedPrefixes = []string{
	"127.",
	"10.",
	"192.168.",
	"169.254.",
	"0.",
	"localhost",
	"::1",
	"fc",
	"fd",
	"fe80",
}

func init() {
	for i := 16; i <= 31; i++ {
		deniedPrefixes = append(deniedPrefixes, "172."+strconv.Itoa(i)+".")
	}
}

// isValidHost reports whether host is allowed as a CONNECT/DNSQUERY target.
// It rejects the empty string, hosts longer than 253 octets (the DNS name
// limit), and any case-insensitive prefix match against deniedPrefixes. IPv6
// literals are additionally checked for ULA (fc00::/7) and link-local
// (fe80::/10) ranges via net.ParseIP, since those don't share a textual
// prefix with the IPv4 entries above.
func isValidHost(host string) bool {
	if host == "" || len(host) > 253 {
		return false
	}

	lower := strings.ToLower(host)
	for _, prefix := range deniedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}

	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsPrivate() {
			return false
		}
	}

	return true
}
