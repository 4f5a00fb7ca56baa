// Package wire implements the collector's text protocol.
//
// A message is a block of UTF-8 lines separated by a two-byte terminator,
// CRLF by default:
//
//	command=report\r\n
//	source=host-1\r\n
//	cpu=0.75\r\n
//	\r\n
//
// Lines are name=value pairs. The reserved command line names the operation;
// every other line becomes a field. Names are case-insensitive and stored
// lower-cased, values are kept verbatim, duplicates are allowed and keep their
// order. Lines without an equals sign are ignored. A line with more than one
// equals sign makes the whole message invalid.
//
// # Decoding
//
// Decoder parses one framed message and keeps the result for lookups:
//
//	d := wire.NewDecoder()
//	if err := d.Decode(text); err != nil {
//	    // malformed: command and fields are empty
//	}
//	source, ok := d.Value("source")
//	cpu, ok := d.Float64("cpu")
//
// Decoding either fully succeeds or leaves the decoder empty. The typed
// lookups come in two flavours: Int32 and friends report a single boolean for
// both a missing field and a value that does not parse; LookupInt32 and
// friends return ErrFieldNotFound or a *FieldError wrapping the strconv error.
//
// # Framing
//
// The decoder does not look for message boundaries. Two framings are
// provided for the transport above it:
//
//   - SplitPacket / AppendPacket: a 4-byte length prefix in network or host
//     byte order, followed by the message text.
//   - SplitMessage: messages end with an empty line. Blank lines between
//     messages are keepalives and carry nothing.
//
// # Encoding
//
// Encoder writes messages that Decoder accepts, into a buffer.Buffer, and
// rejects names and values that would not survive the round trip.
//
// # Error Handling
//
// Errors carry the connection state, as ShouldCloseConnection reports:
//
//   - ErrNoTerminator, ErrInsufficientLines, *LineError: bad message, the
//     connection can be REUSED once the frame is dropped
//   - *FieldError, *InvalidFieldError: no effect on the connection
//   - *FrameError: invalid length prefix, CLOSE connection
//
// # Thread Safety
//
// Decoder is not safe for concurrent use; each connection owns one. Encoder
// holds no mutable state and can be shared.
package wire
