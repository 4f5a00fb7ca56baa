package wire

import (
	"strings"

	"github.com/pior/collector/buffer"
)

// Message is a decoded or to-be-encoded message.
type Message struct {
	Command string
	Fields  []Field
}

// NewMessage builds a message from a command and alternating name, value
// pairs. A trailing name without value gets an empty value.
func NewMessage(command string, pairs ...string) Message {
	m := Message{Command: command, Fields: make([]Field, 0, (len(pairs)+1)/2)}
	for i := 0; i < len(pairs); i += 2 {
		f := Field{Name: pairs[i]}
		if i+1 < len(pairs) {
			f.Value = pairs[i+1]
		}
		m.Fields = append(m.Fields, f)
	}
	return m
}

// Encoder writes messages in the line format understood by Decoder.
//
// The command line comes first when set, then the fields in order, then an
// empty line. The empty line lets messages be framed without a length prefix
// and is ignored by the decoder.
type Encoder struct {
	term string
}

// NewEncoder creates an encoder. The default terminator is CRLF.
func NewEncoder(opts ...Option) *Encoder {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Encoder{term: o.term}
}

// Append validates msg and writes it to dst. Nothing is written when
// validation fails.
func (e *Encoder) Append(dst *buffer.Buffer, msg Message) error {
	if err := e.Validate(msg); err != nil {
		return err
	}

	if err := dst.EnsureCapacity(dst.Len() + e.Size(msg)); err != nil {
		return err
	}

	if msg.Command != "" {
		e.writeLine(dst, KeyCommand, msg.Command)
	}
	for _, f := range msg.Fields {
		e.writeLine(dst, f.Name, f.Value)
	}
	return dst.WriteString(e.term)
}

// Size returns the encoded size of msg in bytes.
func (e *Encoder) Size(msg Message) int {
	n := len(e.term)
	if msg.Command != "" {
		n += len(KeyCommand) + len(EqualSign) + len(msg.Command) + len(e.term)
	}
	for _, f := range msg.Fields {
		n += len(f.Name) + len(EqualSign) + len(f.Value) + len(e.term)
	}
	return n
}

// Validate checks that msg survives a round trip through the decoder.
func (e *Encoder) Validate(msg Message) error {
	if err := e.validateValue(KeyCommand, msg.Command); err != nil {
		return err
	}
	if msg.Command == "" && len(msg.Fields) < 2 {
		return &InvalidFieldError{Reason: "a message needs at least two lines"}
	}
	if msg.Command != "" && len(msg.Fields) < 1 {
		return &InvalidFieldError{Name: KeyCommand, Reason: "a message needs at least two lines"}
	}

	for _, f := range msg.Fields {
		switch {
		case f.Name == "":
			return &InvalidFieldError{Name: f.Name, Reason: "empty name"}
		case strings.Contains(f.Name, EqualSign):
			return &InvalidFieldError{Name: f.Name, Reason: "name contains an equals sign"}
		case strings.Contains(f.Name, e.term):
			return &InvalidFieldError{Name: f.Name, Reason: "name contains the terminator"}
		case strings.EqualFold(f.Name, KeyCommand):
			return &InvalidFieldError{Name: f.Name, Reason: "reserved name"}
		}
		if err := e.validateValue(f.Name, f.Value); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) validateValue(name, value string) error {
	if strings.Contains(value, EqualSign) {
		return &InvalidFieldError{Name: name, Reason: "value contains an equals sign"}
	}
	if strings.Contains(value, e.term) {
		return &InvalidFieldError{Name: name, Reason: "value contains the terminator"}
	}
	return nil
}

// writeLine cannot fail once capacity is ensured.
func (e *Encoder) writeLine(dst *buffer.Buffer, name, value string) {
	_ = dst.WriteString(name)
	_ = dst.WriteString(EqualSign)
	_ = dst.WriteString(value)
	_ = dst.WriteString(e.term)
}

var defaultEncoder = NewEncoder()

// AppendMessage encodes a message with the default CRLF terminator.
func AppendMessage(dst *buffer.Buffer, command string, fields ...Field) error {
	return defaultEncoder.Append(dst, Message{Command: command, Fields: fields})
}

// AppendTo encodes m with the default CRLF terminator.
func (m Message) AppendTo(dst *buffer.Buffer) error {
	return defaultEncoder.Append(dst, m)
}
