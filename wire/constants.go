package wire

// Protocol delimiters
const (
	// CRLF is the default line terminator.
	CRLF = "\r\n"

	// EqualSign separates a field name from its value.
	EqualSign = "="
)

// Reserved and well-known field names. Names are case-insensitive on the wire
// and stored lower-cased.
const (
	// KeyCommand carries the message command. It is reserved: a command line
	// never becomes a field, and its value keeps its original case.
	KeyCommand = "command"

	// KeyCode is the result code of a reply; 0 means success.
	KeyCode = "code"

	// KeyMessage is a human readable explanation attached to a reply.
	KeyMessage = "message"

	// KeySeq is an opaque sequence number echoed back in replies so a client
	// can match pipelined requests.
	KeySeq = "seq"

	// KeySource identifies the reporting agent in report messages.
	KeySource = "source"
)

// Commands of the collector protocol.
const (
	CmdPing   = "ping"
	CmdPong   = "pong"
	CmdReport = "report"
	CmdAck    = "ack"
	CmdError  = "error"
)

// Reply codes
const (
	CodeOK             = 0
	CodeMalformed      = 1
	CodeUnknownCommand = 2
	CodeInvalidField   = 3
	CodeInternal       = 9
)

// Packet framing
const (
	// PacketHeaderSize is the size of the length prefix of a packet.
	PacketHeaderSize = 4

	// DefaultMaxPacketSize bounds the body of a single packet (1MB).
	DefaultMaxPacketSize = 1 << 20
)
