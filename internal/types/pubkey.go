package types

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Pubkey 表示 Solana 上的 32 字节公钥（玩家钱包、程序账户等）
type Pubkey [32]byte

func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

func (p Pubkey) Equals(other Pubkey) bool {
	return p == other
}

// IsZero 判断是否为零值公钥（解码字段缺失时的默认值）
func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

// TryPubkeyFromBase58 解析 base58 字符串为 Pubkey，失败时返回 error（用于不信任输入路径）
func TryPubkeyFromBase58(s string) (Pubkey, error) {
	data, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("failed to decode base58 pubkey %q: %w", s, err)
	}
	if len(data) != 32 {
		return Pubkey{}, fmt.Errorf("invalid pubkey length: got %d, want 32, input=%q", len(data), s)
	}
	var p Pubkey
	copy(p[:], data)
	return p, nil
}

// PubkeyFromBase58 解析 base58 字符串为 Pubkey，失败时 panic（仅用于常量初始化路径）
func PubkeyFromBase58(s string) Pubkey {
	p, err := TryPubkeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return p
}

// PubkeyFromBytes 从原始字节构造 Pubkey，长度不足 32 时返回 false
func PubkeyFromBytes(b []byte) (Pubkey, bool) {
	if len(b) < 32 {
		return Pubkey{}, false
	}
	var p Pubkey
	copy(p[:], b[:32])
	return p, true
}
