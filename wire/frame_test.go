package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/collector/buffer"
)

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantN  int
		wantOK bool
	}{
		{name: "empty", input: ""},
		{name: "incomplete", input: "a=1\r\nb=2\r\n"},
		{name: "complete", input: "a=1\r\nb=2\r\n\r\n", wantN: 12, wantOK: true},
		{name: "complete with trailing data", input: "a=1\r\nb=2\r\n\r\nc=3", wantN: 12, wantOK: true},
		{name: "leading blank lines", input: "\r\n\r\na=1\r\nb=2\r\n\r\n", wantN: 4, wantOK: true},
		{name: "only blank lines", input: "\r\n\r\n\r\n", wantN: 6, wantOK: true},
		{name: "blank line then partial terminator", input: "\r\n\r", wantN: 2, wantOK: true},
		{name: "split terminator", input: "a=1\r\nb=2\r\n\r"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := SplitMessage([]byte(tt.input), CRLF)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantN, n)
		})
	}
}

func TestSplitMessage_Keepalive(t *testing.T) {
	data := []byte("\r\n\r\n\r\na=1\r\nb=2\r\n\r\n")

	n, ok := SplitMessage(data, CRLF)
	require.True(t, ok)
	assert.True(t, Blank(data[:n], CRLF))

	data = data[n:]
	n, ok = SplitMessage(data, CRLF)
	require.True(t, ok)
	assert.False(t, Blank(data[:n], CRLF))
	assert.Equal(t, "a=1\r\nb=2\r\n\r\n", string(data[:n]))
}

func TestBlank(t *testing.T) {
	assert.True(t, Blank([]byte("\r\n"), CRLF))
	assert.True(t, Blank([]byte("\n\n\n"), "\n"))
	assert.False(t, Blank([]byte("\r\na"), CRLF))
	assert.False(t, Blank([]byte("\r"), CRLF))
}

func TestSplitPacket(t *testing.T) {
	for _, network := range []bool{true, false} {
		dst := buffer.New(0)
		require.NoError(t, AppendPacket(dst, []byte("hello"), network))
		require.NoError(t, AppendPacket(dst, []byte(""), network))
		data := dst.Bytes()

		body, n, err := SplitPacket(data, network, 0)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))
		assert.Equal(t, 9, n)

		body, n, err = SplitPacket(data[n:], network, 0)
		require.NoError(t, err)
		assert.Empty(t, body)
		assert.Equal(t, 4, n)
	}
}

func TestSplitPacket_NetworkOrder(t *testing.T) {
	data := []byte{0, 0, 0, 2, 'o', 'k'}

	body, n, err := SplitPacket(data, true, 0)

	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, 6, n)
}

func TestSplitPacket_Incomplete(t *testing.T) {
	dst := buffer.New(0)
	require.NoError(t, AppendPacket(dst, []byte("hello"), true))
	data := dst.Bytes()

	for k := 0; k < len(data); k++ {
		body, n, err := SplitPacket(data[:k], true, 0)
		require.NoError(t, err, "prefix %d", k)
		assert.Nil(t, body)
		assert.Equal(t, 0, n)
	}
}

func TestSplitPacket_Invalid(t *testing.T) {
	negative := make([]byte, 4)
	binary.BigEndian.PutUint32(negative, 0xffffffff)

	_, _, err := SplitPacket(negative, true, 0)
	assert.ErrorIs(t, err, ErrNegativeLength)
	assert.True(t, ShouldCloseConnection(err))

	large := make([]byte, 4)
	binary.BigEndian.PutUint32(large, 11)

	_, _, err = SplitPacket(large, true, 10)
	var frameErr *FrameError
	require.ErrorAs(t, err, &frameErr)
	assert.Equal(t, int64(11), frameErr.Size)
	assert.ErrorIs(t, err, ErrPacketTooLarge)
	assert.True(t, ShouldCloseConnection(err))

	_, _, err = SplitPacket(large, true, 11)
	assert.NoError(t, err, "limit is inclusive")
}

func TestEncoderAppendPacket(t *testing.T) {
	dst := buffer.New(0)
	msg := NewMessage(CmdReport, KeySource, "host-1", "cpu", "0.5")

	require.NoError(t, NewEncoder().AppendPacket(dst, msg, true))

	body, n, err := SplitPacket(dst.Bytes(), true, 0)
	require.NoError(t, err)
	assert.Equal(t, dst.Len(), n)

	d := NewDecoder()
	require.NoError(t, d.DecodeBytes(body))
	assert.Equal(t, msg, d.Message())
}

func TestEncoderAppendPacket_Invalid(t *testing.T) {
	dst := buffer.New(0)

	err := NewEncoder().AppendPacket(dst, NewMessage(CmdAck, "a", "1=2"), true)

	assert.Error(t, err)
	assert.Equal(t, 0, dst.Len())
}
