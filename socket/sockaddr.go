package socket

import (
	"net"

	"golang.org/x/sys/unix"
)

// toSockaddr converts a dial target (ip, port) into the unix sockaddr
// the connect(2)/bind(2)/sendto(2) family expects, picking IPv4 or
// IPv6 based on the address's form.
func toSockaddr(ip net.IP, port int) unix.Sockaddr {
	if v4 := ip.To4(); v4 != nil {
		var sa unix.SockaddrInet4
		copy(sa.Addr[:], v4)
		sa.Port = port
		return &sa
	}
	var sa unix.SockaddrInet6
	copy(sa.Addr[:], ip.To16())
	sa.Port = port
	return &sa
}

// fromSockaddr converts a unix sockaddr, as returned by accept(2) or
// recvfrom(2), into a net.Addr usable by user callbacks.
func fromSockaddr(sa unix.Sockaddr, udp bool) net.Addr {
	var ip net.IP
	var port int
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip = net.IP(v.Addr[:]).To4()
		port = v.Port
	case *unix.SockaddrInet6:
		ip = net.IP(v.Addr[:])
		port = v.Port
	default:
		return nil
	}
	if udp {
		return &net.UDPAddr{IP: ip, Port: port}
	}
	return &net.TCPAddr{IP: ip, Port: port}
}

// addrIP extracts the IP/port pair out of a net.Addr produced by
// either net.ResolveTCPAddr/ResolveUDPAddr or fromSockaddr above.
func addrIP(a net.Addr) (net.IP, int) {
	switch v := a.(type) {
	case *net.TCPAddr:
		return v.IP, v.Port
	case *net.UDPAddr:
		return v.IP, v.Port
	default:
		return nil, 0
	}
}
