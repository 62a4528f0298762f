package types

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Signature 表示 64 字节交易签名，是事件判重 key 的第一维
type Signature [64]byte

func (s Signature) String() string {
	return base58.Encode(s[:])
}

// SignatureFromBytes 从原始字节构造 Signature，长度必须为 64
func SignatureFromBytes(b []byte) (Signature, error) {
	if len(b) != 64 {
		return Signature{}, fmt.Errorf("invalid signature length: got %d, want 64", len(b))
	}
	var s Signature
	copy(s[:], b)
	return s, nil
}
