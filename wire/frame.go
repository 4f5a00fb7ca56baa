package wire

import (
	"bytes"

	"github.com/pior/collector/buffer"
)

// SplitMessage finds the end of the first blank-line delimited message in
// data, that is the first occurrence of two consecutive terminators.
//
// A run of leading terminators is returned as a span of its own, so blank
// keepalive lines are consumed before a message arrives. Blank reports such
// spans. It returns the number of bytes to consume and false when data does
// not yet hold a complete message.
func SplitMessage(data []byte, term string) (n int, ok bool) {
	t := []byte(term)
	for bytes.HasPrefix(data[n:], t) {
		n += len(t)
	}
	if n > 0 {
		return n, true
	}
	sep := []byte(term + term)
	i := bytes.Index(data, sep)
	if i < 0 {
		return 0, false
	}
	return i + len(sep), true
}

// Blank reports whether span holds nothing but terminators.
func Blank(span []byte, term string) bool {
	t := []byte(term)
	for len(span) > 0 {
		if !bytes.HasPrefix(span, t) {
			return false
		}
		span = span[len(t):]
	}
	return true
}

// SplitPacket reads a length-prefixed packet from the front of data.
//
// The 4-byte signed length prefix is big-endian when network is true and in
// host order otherwise. It returns the packet body, the number of bytes to
// consume, and an error when the prefix is invalid. When data holds an
// incomplete packet it returns n == 0 and a nil error. max bounds the body
// size; zero means DefaultMaxPacketSize.
func SplitPacket(data []byte, network bool, max int) (body []byte, n int, err error) {
	if len(data) < PacketHeaderSize {
		return nil, 0, nil
	}
	if max <= 0 {
		max = DefaultMaxPacketSize
	}

	size := int32(buffer.Order(network).Uint32(data))
	if size < 0 {
		return nil, 0, &FrameError{Size: int64(size), Err: ErrNegativeLength}
	}
	if int64(size) > int64(max) {
		return nil, 0, &FrameError{Size: int64(size), Err: ErrPacketTooLarge}
	}

	end := PacketHeaderSize + int(size)
	if len(data) < end {
		return nil, 0, nil
	}
	return data[PacketHeaderSize:end], end, nil
}

// AppendPacket writes body to dst behind a 4-byte length prefix.
func AppendPacket(dst *buffer.Buffer, body []byte, network bool) error {
	if err := dst.EnsureCapacity(dst.Len() + PacketHeaderSize + len(body)); err != nil {
		return err
	}
	if err := dst.WriteInt32(int32(len(body)), network); err != nil {
		return err
	}
	return dst.Append(body, 0, len(body))
}

// AppendPacket encodes msg as the body of a length-prefixed packet, without
// an intermediate copy.
func (e *Encoder) AppendPacket(dst *buffer.Buffer, msg Message, network bool) error {
	if err := e.Validate(msg); err != nil {
		return err
	}
	size := e.Size(msg)
	if err := dst.EnsureCapacity(dst.Len() + PacketHeaderSize + size); err != nil {
		return err
	}
	if err := dst.WriteInt32(int32(size), network); err != nil {
		return err
	}
	return e.Append(dst, msg)
}
