package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeMessage(t *testing.T) {
	body := []byte(`{"kind":"EarningsUpdated"}`)
	data := EncodeMessage(1, body)

	require.Len(t, data, 4+len(body))
	// 小端类型前缀
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x00}, data[:4])

	msgType, decoded, ok := DecodeMessage(data)
	require.True(t, ok)
	assert.Equal(t, uint32(1), msgType)
	assert.Equal(t, body, decoded)
}

func TestDecodeMessage_TooShort(t *testing.T) {
	_, _, ok := DecodeMessage([]byte{0x01, 0x02})
	assert.False(t, ok)
}

func TestEncodeMessage_EmptyBody(t *testing.T) {
	data := EncodeMessage(7, nil)
	require.Len(t, data, 4)

	msgType, body, ok := DecodeMessage(data)
	require.True(t, ok)
	assert.Equal(t, uint32(7), msgType)
	assert.Empty(t, body)
}
