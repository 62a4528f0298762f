package eventdecoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadBoundedReads(t *testing.T) {
	p := payload{b: []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a}}

	t.Run("in range", func(t *testing.T) {
		v8, ok := p.u8(0)
		require.True(t, ok)
		assert.Equal(t, uint8(0x01), v8)

		v16, ok := p.u16(0)
		require.True(t, ok)
		assert.Equal(t, uint16(0x0201), v16) // 小端

		v32, ok := p.u32(2)
		require.True(t, ok)
		assert.Equal(t, uint32(0x06050403), v32)

		v64, ok := p.u64(2)
		require.True(t, ok)
		assert.Equal(t, uint64(0x0a09080706050403), v64)
	})

	t.Run("exactly at boundary", func(t *testing.T) {
		_, ok := p.u16(8)
		assert.True(t, ok)
		_, ok = p.u8(9)
		assert.True(t, ok)
	})

	t.Run("out of range", func(t *testing.T) {
		_, ok := p.u8(10)
		assert.False(t, ok)
		_, ok = p.u16(9)
		assert.False(t, ok)
		_, ok = p.u64(3)
		assert.False(t, ok)
		_, ok = p.pubkey(0)
		assert.False(t, ok)
	})

	t.Run("negative offset", func(t *testing.T) {
		_, ok := p.u8(-1)
		assert.False(t, ok)
	})
}

func TestPayloadPubkey(t *testing.T) {
	p := payload{b: testWallet}
	pk, ok := p.pubkey(0)
	require.True(t, ok)
	assert.Equal(t, testWallet, pk[:])
}

func TestPayloadI64(t *testing.T) {
	p := payload{b: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}}
	v, ok := p.i64(0)
	require.True(t, ok)
	assert.Equal(t, int64(-1), v)
}
