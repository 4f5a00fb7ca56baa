package wire

import (
	"strconv"
	"strings"
)

// Field is a single name=value pair of a message.
type Field struct {
	Name  string
	Value string
}

// Option configures a Decoder or an Encoder.
type Option func(*options)

type options struct {
	term string
}

func defaultOptions() options {
	return options{term: CRLF}
}

// WithTerminator sets the two-byte line terminator. It panics if term is not
// exactly two bytes long.
func WithTerminator(term string) Option {
	if len(term) != 2 {
		panic("wire: terminator must be two bytes, got " + strconv.Quote(term))
	}
	return func(o *options) {
		o.term = term
	}
}

// Decoder extracts one message from a block of text and keeps the result
// until the next call to Decode.
//
// A message is a run of lines separated by the terminator. Empty lines are
// skipped and at least two non-empty lines are required. A line holds either
// no equals sign (ignored), exactly one (name=value) or more (the whole
// message is rejected). The reserved command line sets Command and is not a
// field; every other name is lower-cased and appended in order, duplicates
// included.
//
// A Decoder is not safe for concurrent use; give each connection its own.
type Decoder struct {
	term    string
	command string
	fields  []Field
}

// NewDecoder creates a decoder. The default terminator is CRLF.
func NewDecoder(opts ...Option) *Decoder {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Decoder{
		term:   o.term,
		fields: make([]Field, 0, 8),
	}
}

// Terminator returns the line terminator of the decoder.
func (d *Decoder) Terminator() string { return d.term }

// Decode parses text as a single message.
//
// On success Command and Fields describe the message and the previous result
// is discarded. On failure both are empty and the error is one of
// ErrNoTerminator, ErrInsufficientLines or a *LineError wrapping
// ErrTooManyEquals.
//
// Values alias text; no copy of the input is made.
func (d *Decoder) Decode(text string) error {
	d.Reset()

	if !strings.Contains(text, d.term) {
		return ErrNoTerminator
	}
	if countLines(text, d.term, 2) < 2 {
		return ErrInsufficientLines
	}

	rest := text
	index := 0
	for rest != "" {
		var line string
		line, rest = cutLine(rest, d.term)
		if line == "" {
			continue
		}

		name, value, ok := strings.Cut(line, EqualSign)
		if !ok {
			index++
			continue
		}
		if strings.Contains(value, EqualSign) {
			d.Reset()
			return &LineError{Line: index, Text: line, Err: ErrTooManyEquals}
		}

		if strings.EqualFold(name, KeyCommand) {
			d.command = value
		} else {
			d.fields = append(d.fields, Field{Name: strings.ToLower(name), Value: value})
		}
		index++
	}

	return nil
}

// DecodeBytes is Decode over a byte slice. The bytes are copied once so the
// caller may reuse p immediately.
func (d *Decoder) DecodeBytes(p []byte) error {
	return d.Decode(string(p))
}

// Reset clears the last decoded message.
func (d *Decoder) Reset() {
	d.command = ""
	clear(d.fields)
	d.fields = d.fields[:0]
}

// Command returns the command of the last decoded message, or "" if it had
// none.
func (d *Decoder) Command() string { return d.command }

// Fields returns the fields of the last decoded message in wire order. The
// slice is reused by the next Decode.
func (d *Decoder) Fields() []Field { return d.fields }

// Len returns the number of fields.
func (d *Decoder) Len() int { return len(d.fields) }

// Message returns a copy of the last decoded message.
func (d *Decoder) Message() Message {
	return Message{
		Command: d.command,
		Fields:  append([]Field(nil), d.fields...),
	}
}

// Value returns the value of the first field called name, compared
// case-insensitively.
func (d *Decoder) Value(name string) (string, bool) {
	for _, f := range d.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns the values of every field called name, in wire order.
func (d *Decoder) Values(name string) []string {
	var values []string
	for _, f := range d.fields {
		if strings.EqualFold(f.Name, name) {
			values = append(values, f.Value)
		}
	}
	return values
}

// Has reports whether a field called name exists.
func (d *Decoder) Has(name string) bool {
	_, ok := d.Value(name)
	return ok
}

// Int16 returns the first field called name parsed as a 16-bit integer.
// A missing field and an unparsable value both report false; use LookupInt16
// to tell them apart.
func (d *Decoder) Int16(name string) (int16, bool) {
	v, err := d.LookupInt16(name)
	return v, err == nil
}

// Int32 is Int16 for 32-bit integers.
func (d *Decoder) Int32(name string) (int32, bool) {
	v, err := d.LookupInt32(name)
	return v, err == nil
}

// Int64 is Int16 for 64-bit integers.
func (d *Decoder) Int64(name string) (int64, bool) {
	v, err := d.LookupInt64(name)
	return v, err == nil
}

// Float32 is Int16 for 32-bit floats.
func (d *Decoder) Float32(name string) (float32, bool) {
	v, err := d.LookupFloat32(name)
	return v, err == nil
}

// Float64 is Int16 for 64-bit floats.
func (d *Decoder) Float64(name string) (float64, bool) {
	v, err := d.LookupFloat64(name)
	return v, err == nil
}

// LookupInt16 returns the first field called name parsed as a 16-bit integer.
// The error is a *FieldError wrapping ErrFieldNotFound when the field is
// missing, or the strconv error when the value does not parse.
func (d *Decoder) LookupInt16(name string) (int16, error) {
	v, err := d.lookupInt(name, 16)
	return int16(v), err
}

// LookupInt32 is LookupInt16 for 32-bit integers.
func (d *Decoder) LookupInt32(name string) (int32, error) {
	v, err := d.lookupInt(name, 32)
	return int32(v), err
}

// LookupInt64 is LookupInt16 for 64-bit integers.
func (d *Decoder) LookupInt64(name string) (int64, error) {
	return d.lookupInt(name, 64)
}

// LookupFloat32 is LookupInt16 for 32-bit floats.
func (d *Decoder) LookupFloat32(name string) (float32, error) {
	v, err := d.lookupFloat(name, 32)
	return float32(v), err
}

// LookupFloat64 is LookupInt16 for 64-bit floats.
func (d *Decoder) LookupFloat64(name string) (float64, error) {
	return d.lookupFloat(name, 64)
}

func (d *Decoder) lookupInt(name string, bitSize int) (int64, error) {
	s, ok := d.Value(name)
	if !ok {
		return 0, &FieldError{Name: name, Err: ErrFieldNotFound}
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, bitSize)
	if err != nil {
		return 0, &FieldError{Name: name, Value: s, Err: unwrapNumError(err)}
	}
	return v, nil
}

func (d *Decoder) lookupFloat(name string, bitSize int) (float64, error) {
	s, ok := d.Value(name)
	if !ok {
		return 0, &FieldError{Name: name, Err: ErrFieldNotFound}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), bitSize)
	if err != nil {
		return 0, &FieldError{Name: name, Value: s, Err: unwrapNumError(err)}
	}
	return v, nil
}

// unwrapNumError strips the *strconv.NumError wrapper, FieldError already
// carries the input.
func unwrapNumError(err error) error {
	if ne, ok := err.(*strconv.NumError); ok {
		return ne.Err
	}
	return err
}

// cutLine splits s at the first terminator. A trailing line without
// terminator is returned whole.
func cutLine(s, term string) (line, rest string) {
	if i := strings.Index(s, term); i >= 0 {
		return s[:i], s[i+len(term):]
	}
	return s, ""
}

// countLines counts non-empty lines of s, stopping once limit is reached.
func countLines(s, term string, limit int) int {
	n := 0
	for s != "" && n < limit {
		var line string
		line, s = cutLine(s, term)
		if line != "" {
			n++
		}
	}
	return n
}
