// Package buffer provides the growable byte accumulator used on both sides of
// a connection.
//
// A Buffer keeps its valid bytes at the front of a single allocation. Appends
// copy into the free tail and only reallocate when the tail is too small;
// Consume drops processed bytes by shifting the remainder down. Storage is
// never released, so a buffer owned by a pooled connection token is reused
// for every connection the token serves.
//
// Growth is explicit: the default ExactFit policy sizes a reallocation to the
// write that triggered it. Doubling trades memory for fewer reallocations.
//
// Typed writes encode fixed-width integers in either host or network byte
// order, selected per call:
//
//	buf := buffer.New(4096)
//	buf.WriteInt32(int32(len(body)), true) // big-endian length prefix
//	buf.WriteString(body)
package buffer
