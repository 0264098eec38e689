package spec

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// PortMapping is a parsed compose port string.
type PortMapping struct {
	// HostIP is the host interface to bind, or "" for all interfaces.
	HostIP string

	// HostPort is the host-side port, or 0 when the mapping only names a
	// container port and the host side is left to the OS.
	HostPort int

	// ContainerPort is the port inside the container.
	ContainerPort int

	// Protocol is "tcp" or "udp". Defaults to "tcp".
	Protocol string
}

// String renders the mapping back in compose syntax.
func (p PortMapping) String() string {
	var b strings.Builder
	if p.HostIP != "" {
		b.WriteString(p.HostIP)
		b.WriteByte(':')
	}
	if p.HostPort != 0 || p.HostIP != "" {
		b.WriteString(strconv.Itoa(p.HostPort))
		b.WriteByte(':')
	}
	b.WriteString(strconv.Itoa(p.ContainerPort))
	if p.Protocol != "" && p.Protocol != "tcp" {
		b.WriteByte('/')
		b.WriteString(p.Protocol)
	}
	return b.String()
}

// ParsePortMapping parses a compose port string. Supported forms:
//
//	"9616"                 container port only, host port assigned by the OS
//	"9916:9616"            host:container
//	"127.0.0.1:8080:80"    ip:host:container
//
// with an optional "/tcp" or "/udp" suffix on any form.
func ParsePortMapping(s string) (PortMapping, error) {
	pm := PortMapping{Protocol: "tcp"}

	rest := s
	if idx := strings.LastIndexByte(rest, '/'); idx >= 0 {
		proto := strings.ToLower(rest[idx+1:])
		if proto != "tcp" && proto != "udp" {
			return PortMapping{}, fmt.Errorf("port %q: unsupported protocol %q", s, proto)
		}
		pm.Protocol = proto
		rest = rest[:idx]
	}

	parts := strings.Split(rest, ":")
	switch len(parts) {
	case 1:
		cp, err := parsePort(s, parts[0])
		if err != nil {
			return PortMapping{}, err
		}
		pm.ContainerPort = cp
	case 2:
		hp, err := parsePort(s, parts[0])
		if err != nil {
			return PortMapping{}, err
		}
		cp, err := parsePort(s, parts[1])
		if err != nil {
			return PortMapping{}, err
		}
		pm.HostPort, pm.ContainerPort = hp, cp
	case 3:
		if net.ParseIP(parts[0]) == nil {
			return PortMapping{}, fmt.Errorf("port %q: invalid host IP %q", s, parts[0])
		}
		pm.HostIP = parts[0]
		hp, err := parsePort(s, parts[1])
		if err != nil {
			return PortMapping{}, err
		}
		cp, err := parsePort(s, parts[2])
		if err != nil {
			return PortMapping{}, err
		}
		pm.HostPort, pm.ContainerPort = hp, cp
	default:
		return PortMapping{}, fmt.Errorf("port %q: expected [ip:][host:]container", s)
	}

	if pm.ContainerPort == 0 {
		return PortMapping{}, fmt.Errorf("port %q: container port is required", s)
	}
	return pm, nil
}

func parsePort(full, part string) (int, error) {
	n, err := strconv.Atoi(part)
	if err != nil {
		return 0, fmt.Errorf("port %q: %q is not a number", full, part)
	}
	if n < 0 || n > 65535 {
		return 0, fmt.Errorf("port %q: %d out of range", full, n)
	}
	return n, nil
}
