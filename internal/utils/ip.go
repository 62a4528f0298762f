package utils

import (
	"net"
)

// GetLocalIP 返回本机对外 IPv4 地址，获取失败时返回 "unknown"。
// 走一次 UDP "连接" 只为让内核选路，不产生实际流量。
func GetLocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "unknown"
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "unknown"
	}
	return addr.IP.String()
}
