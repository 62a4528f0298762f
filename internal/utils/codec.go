package utils

import (
	"encoding/binary"
)

// EncodeMessage 将消息体编码为带类型前缀的二进制数据：
// - 前 4 字节为消息类型（uint32，小端序）
// - 后续为消息体（JSON 序列化后的字节）
func EncodeMessage(msgType uint32, body []byte) []byte {
	buf := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(buf[:4], msgType)
	copy(buf[4:], body)
	return buf
}

// DecodeMessage 拆出类型前缀与消息体；长度不足 4 字节时返回 false
func DecodeMessage(data []byte) (msgType uint32, body []byte, ok bool) {
	if len(data) < 4 {
		return 0, nil, false
	}
	return binary.LittleEndian.Uint32(data[:4]), data[4:], true
}
