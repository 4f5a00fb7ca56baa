package wire

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldCloseConnection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "no terminator", err: ErrNoTerminator, want: false},
		{name: "insufficient lines", err: ErrInsufficientLines, want: false},
		{name: "line error", err: &LineError{Line: 1, Text: "a=1=2", Err: ErrTooManyEquals}, want: false},
		{name: "wrapped line error", err: fmt.Errorf("decode: %w", &LineError{Err: ErrTooManyEquals}), want: false},
		{name: "field not found", err: &FieldError{Name: "id", Err: ErrFieldNotFound}, want: false},
		{name: "field parse error", err: &FieldError{Name: "id", Value: "x", Err: strconv.ErrSyntax}, want: false},
		{name: "invalid field", err: &InvalidFieldError{Name: "a", Reason: "empty name"}, want: false},
		{name: "frame error", err: &FrameError{Size: -1, Err: ErrNegativeLength}, want: true},
		{name: "bare packet too large", err: ErrPacketTooLarge, want: true},
		{name: "io error", err: io.ErrUnexpectedEOF, want: true},
		{name: "unknown error", err: errors.New("boom"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldCloseConnection(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, `wire: field "id": invalid value "x": invalid syntax`,
		(&FieldError{Name: "id", Value: "x", Err: strconv.ErrSyntax}).Error())
	assert.Equal(t, `wire: invalid field "a": empty name`,
		(&InvalidFieldError{Name: "a", Reason: "empty name"}).Error())
	assert.Equal(t, "wire: invalid packet length -1: wire: negative packet length",
		(&FrameError{Size: -1, Err: ErrNegativeLength}).Error())
}
