package eventdecoder

import (
	"encoding/binary"

	"tycoon-indexer-sol/internal/types"
)

// payload 是事件 body（已去掉 8 字节 discriminator）上的有界读取器。
// 同一事件种类在不同程序版本下观测到过不同长度的 payload，
// 因此所有字段读取都按 (value, ok) 返回：字节区间越界时 ok=false，字段缺失，绝不切片越界。
type payload struct {
	b []byte
}

func (p payload) size() int { return len(p.b) }

// has 判断 [off, off+n) 是否完全落在 payload 内
func (p payload) has(off, n int) bool {
	return off >= 0 && n >= 0 && off+n <= len(p.b)
}

func (p payload) pubkey(off int) (types.Pubkey, bool) {
	if !p.has(off, 32) {
		return types.Pubkey{}, false
	}
	return types.PubkeyFromBytes(p.b[off : off+32])
}

func (p payload) u8(off int) (uint8, bool) {
	if !p.has(off, 1) {
		return 0, false
	}
	return p.b[off], true
}

func (p payload) u16(off int) (uint16, bool) {
	if !p.has(off, 2) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(p.b[off : off+2]), true
}

func (p payload) u32(off int) (uint32, bool) {
	if !p.has(off, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(p.b[off : off+4]), true
}

func (p payload) u64(off int) (uint64, bool) {
	if !p.has(off, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(p.b[off : off+8]), true
}

func (p payload) i64(off int) (int64, bool) {
	v, ok := p.u64(off)
	return int64(v), ok
}
