package libp2p

import (
	"bytes"
	"io"
	"testing"

	"github.com/multiformats/go-varint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFrame_RoundTrip 测试写入后读出同一负载，且不越界读取
func TestFrame_RoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, writeFrame(buf, []byte("hello"), 0))
	require.NoError(t, writeFrame(buf, nil, 0))
	buf.WriteString("tail")

	r := io.MultiReader(buf) // 不实现 io.ByteReader
	got, err := readFrame(r, 1024)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	got, err = readFrame(r, 1024)
	require.NoError(t, err)
	assert.Empty(t, got)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "tail", string(rest))
}

// TestFrame_Limits 测试写入与读取两侧的长度上限
func TestFrame_Limits(t *testing.T) {
	buf := &bytes.Buffer{}
	assert.ErrorIs(t, writeFrame(buf, make([]byte, 10), 4), ErrFrameTooLarge)
	assert.Zero(t, buf.Len())

	buf.Write(varint.ToUvarint(1 << 30))
	_, err := readFrame(buf, 1024)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

// TestFrame_Truncated 测试负载不完整
func TestFrame_Truncated(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.Write(varint.ToUvarint(8))
	buf.WriteString("abc")

	_, err := readFrame(buf, 0)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
