package buffer

import (
	"encoding/binary"
	"unsafe"
)

// HostOrder is the byte order of the machine, detected at init.
var HostOrder binary.ByteOrder = detectHostOrder()

func detectHostOrder() binary.ByteOrder {
	probe := uint16(0x0102)
	if *(*byte)(unsafe.Pointer(&probe)) == 0x01 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Order returns the byte order selected by the network flag: big-endian when
// network is true, HostOrder otherwise.
func Order(network bool) binary.ByteOrder {
	if network {
		return binary.BigEndian
	}
	return HostOrder
}

// WriteInt16 appends v as 2 bytes. network selects big-endian instead of the
// host order; peers must agree on which fields use which order.
func (b *Buffer) WriteInt16(v int16, network bool) error {
	var tmp [2]byte
	Order(network).PutUint16(tmp[:], uint16(v))
	return b.Append(tmp[:], 0, len(tmp))
}

// WriteInt32 appends v as 4 bytes.
func (b *Buffer) WriteInt32(v int32, network bool) error {
	var tmp [4]byte
	Order(network).PutUint32(tmp[:], uint32(v))
	return b.Append(tmp[:], 0, len(tmp))
}

// WriteInt64 appends v as 8 bytes.
func (b *Buffer) WriteInt64(v int64, network bool) error {
	var tmp [8]byte
	Order(network).PutUint64(tmp[:], uint64(v))
	return b.Append(tmp[:], 0, len(tmp))
}

// WriteString appends the UTF-8 bytes of s.
func (b *Buffer) WriteString(s string) error {
	if b.Free() < len(s) {
		if err := b.growTo(b.n + len(s)); err != nil {
			return err
		}
	}
	b.n += copy(b.buf[b.n:], s)
	return nil
}

// ReadInt16 decodes 2 bytes at offset. The range must be within [0, Len()).
func (b *Buffer) ReadInt16(offset int, network bool) int16 {
	return int16(Order(network).Uint16(b.buf[offset : offset+2 : b.n]))
}

// ReadInt32 decodes 4 bytes at offset.
func (b *Buffer) ReadInt32(offset int, network bool) int32 {
	return int32(Order(network).Uint32(b.buf[offset : offset+4 : b.n]))
}

// ReadInt64 decodes 8 bytes at offset.
func (b *Buffer) ReadInt64(offset int, network bool) int64 {
	return int64(Order(network).Uint64(b.buf[offset : offset+8 : b.n]))
}
