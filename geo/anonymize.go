package geo

import "net/netip"

const (
	ipv4KeepBits = 24
	ipv6KeepBits = 48
)

// Anonymize zeroes the host part of addr: the last octet of an IPv4 address,
// everything after the first 48 bits of an IPv6 address. IPv4-mapped IPv6
// addresses are treated as IPv4.
func Anonymize(addr netip.Addr) netip.Addr {
	addr = addr.Unmap().WithZone("")
	bits := ipv6KeepBits
	if addr.Is4() {
		bits = ipv4KeepBits
	}
	p, err := addr.Prefix(bits)
	if err != nil {
		return addr
	}
	return p.Addr()
}
