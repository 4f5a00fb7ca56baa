//go:build !linux

package collector

import "net"

func listenConfig() net.ListenConfig {
	return net.ListenConfig{}
}

func tuneConn(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
}
