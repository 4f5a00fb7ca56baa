package wire

import (
	"errors"
	"fmt"
	"strconv"
)

// Decode failures. A failed decode always leaves the decoder empty.
var (
	// ErrNoTerminator is returned when the text contains no line terminator.
	ErrNoTerminator = errors.New("wire: missing terminator")

	// ErrInsufficientLines is returned when fewer than two non-empty lines
	// remain after splitting on the terminator.
	ErrInsufficientLines = errors.New("wire: insufficient fields")

	// ErrTooManyEquals marks a line holding more than one equals sign.
	ErrTooManyEquals = errors.New("wire: more than one equals sign")
)

// Lookup and framing failures.
var (
	// ErrFieldNotFound is returned by typed lookups when no field has the name.
	ErrFieldNotFound = errors.New("wire: field not found")

	// ErrPacketTooLarge is returned when a packet length prefix exceeds the limit.
	ErrPacketTooLarge = errors.New("wire: packet too large")

	// ErrNegativeLength is returned when a packet length prefix is negative.
	ErrNegativeLength = errors.New("wire: negative packet length")
)

// LineError reports the line that made a decode fail.
//
// Connection handling: the message is malformed but framing is intact, the
// connection can be REUSED after dropping the message.
type LineError struct {
	Line int    // Zero-based index among non-empty lines
	Text string // The offending line
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("wire: line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns false - a bad message does not break framing
func (e *LineError) ShouldCloseConnection() bool {
	return false
}

// FieldError is returned by the three-way typed lookups. Err is either
// ErrFieldNotFound or the strconv error raised while parsing Value.
type FieldError struct {
	Name  string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	if errors.Is(e.Err, ErrFieldNotFound) {
		return "wire: field " + strconv.Quote(e.Name) + " not found"
	}
	return fmt.Sprintf("wire: field %q: invalid value %q: %v", e.Name, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns false - lookups never touch connection state
func (e *FieldError) ShouldCloseConnection() bool {
	return false
}

// InvalidFieldError is returned by the encoder when a name or value cannot be
// represented on the wire.
//
// Connection handling: nothing was written, the connection is still valid
type InvalidFieldError struct {
	Name   string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return "wire: invalid field " + strconv.Quote(e.Name) + ": " + e.Reason
}

// ShouldCloseConnection returns false - the message was rejected before writing
func (e *InvalidFieldError) ShouldCloseConnection() bool {
	return false
}

// FrameError reports an invalid packet header. The byte stream can no longer
// be split reliably.
//
// Connection handling: CLOSE connection
type FrameError struct {
	Size int64
	Err  error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("wire: invalid packet length %d: %v", e.Size, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - framing is lost
func (e *FrameError) ShouldCloseConnection() bool {
	return true
}

// ErrorWithConnectionState is implemented by errors that know whether the
// connection they happened on can still be used.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether err requires closing the connection.
//
// Returns false for nil, the sentinel decode failures and the error types
// above that leave framing intact. Unknown errors are treated conservatively
// and return true.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	switch {
	case errors.Is(err, ErrNoTerminator),
		errors.Is(err, ErrInsufficientLines),
		errors.Is(err, ErrTooManyEquals),
		errors.Is(err, ErrFieldNotFound):
		return false
	}

	return true
}
