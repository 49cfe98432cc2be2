package identity

import (
	"log/slog"
	"net"
)

// Loopback is returned by LocalIPv4 when no outbound address can be found.
const Loopback = "127.0.0.1"

// probeAddr does not need to be reachable: connecting a UDP socket only
// selects a route and binds a local address, nothing is sent.
var probeAddr = "10.255.255.255:1"

// LocalIPv4 returns the IPv4 address of the interface used for outbound
// traffic, or Loopback if it cannot be determined.
func LocalIPv4() string {
	conn, err := net.Dial("udp4", probeAddr)
	if err != nil {
		slog.Warn("identity: local address lookup failed, using loopback", "err", err)
		return Loopback
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.To4() == nil || addr.IP.IsUnspecified() {
		return Loopback
	}
	return addr.IP.String()
}
