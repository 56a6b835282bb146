package session

import (
	"net"
	"os"
	"os/user"
)

// HostInfo describes the machine the session runs on. It is resolved once
// when the session is created and passed to whatever needs it.
type HostInfo struct {
	IP       string
	Hostname string
	User     string
}

// Fallbacks used when a value cannot be determined.
const (
	unknownIP   = "remote.yourdomain.edu"
	unknownUser = "user"
)

// DetectHost resolves the outbound IP address, hostname and user name.
func DetectHost() HostInfo {
	info := HostInfo{IP: unknownIP, User: unknownUser}

	if name, err := os.Hostname(); err == nil {
		info.Hostname = name
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		info.User = u.Username
	} else if name := os.Getenv("USER"); name != "" {
		info.User = name
	}
	if ip := outboundIP(); ip != "" {
		info.IP = ip
	}
	return info
}

// outboundIP returns the local address the kernel would use for an external
// route. Nothing is sent; a UDP "connection" only selects the route.
func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err == nil {
		defer conn.Close()
		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && !addr.IP.IsLoopback() {
			return addr.IP.String()
		}
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String()
		}
	}
	return ""
}
