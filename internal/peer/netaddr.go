package peer

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/lightningnetwork/lnd/tor"
)

// NetAddress is the Tor-capable address union a connect_peer caller or a
// persisted peer row carries (spec 4.D), adapted from lnwire.NetAddress's
// embedded net.Addr field: clearnet dials use *net.TCPAddr, onion-service
// peers use tor.OnionAddr.
type NetAddress struct {
	Addr net.Addr
}

func (n NetAddress) String() string {
	return n.Addr.String()
}

func (n NetAddress) IsTor() bool {
	_, ok := n.Addr.(*tor.OnionAddr)
	return ok
}

// hostAddr is the net_address tagged union's Hostname variant (spec
// section 3): a bare DNS name with no IP literal to resolve ahead of
// time. It implements net.Addr purely so it can travel through
// NetAddress like the IP/Tor variants do; resolution happens wherever
// the caller actually dials, since net.Dial/net.DialTimeout accept a
// "host:port" string and resolve the host themselves.
type hostAddr struct {
	host string
	port int
}

func (h *hostAddr) Network() string { return "tcp" }
func (h *hostAddr) String() string  { return net.JoinHostPort(h.host, strconv.Itoa(h.port)) }

// ParseNetAddress parses "host:port" into a NetAddress, recognising
// ".onion" hosts as Tor addresses the way the teacher's net_address
// parsing does before handing an address to brontide.Dial.
func ParseNetAddress(addr string) (NetAddress, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return NetAddress{}, fmt.Errorf("malformed address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return NetAddress{}, fmt.Errorf("malformed port in %q: %w", addr, err)
	}

	if strings.HasSuffix(host, ".onion") {
		return NetAddress{Addr: &tor.OnionAddr{OnionService: host, Port: port}}, nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return NetAddress{Addr: &net.TCPAddr{IP: ip, Port: port}}, nil
	}
	// Not an IP literal: treat it as a Hostname (spec section 3) rather
	// than silently building a *net.TCPAddr with a nil IP, which would
	// stringify to ":port" and drop the host entirely.
	return NetAddress{Addr: &hostAddr{host: host, port: port}}, nil
}
