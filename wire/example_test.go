package wire_test

import (
	"errors"
	"fmt"

	"github.com/pior/collector/buffer"
	"github.com/pior/collector/wire"
)

func ExampleDecoder() {
	d := wire.NewDecoder()

	if err := d.Decode("command=report\r\nSource=host-1\r\ncpu=0.5\r\ncpu=0.7\r\n"); err != nil {
		fmt.Println("decode:", err)
		return
	}

	source, _ := d.Value("source")
	fmt.Println(d.Command(), source, d.Values("CPU"))
	// Output: report host-1 [0.5 0.7]
}

func ExampleDecoder_LookupInt32() {
	d := wire.NewDecoder()
	_ = d.Decode("id=7\r\nname=abc\r\n")

	for _, name := range []string{"id", "name", "missing"} {
		v, err := d.LookupInt32(name)
		switch {
		case err == nil:
			fmt.Println(name, v)
		case errors.Is(err, wire.ErrFieldNotFound):
			fmt.Println(name, "not found")
		default:
			fmt.Println(name, "invalid")
		}
	}
	// Output:
	// id 7
	// name invalid
	// missing not found
}

func ExampleEncoder_AppendPacket() {
	buf := buffer.New(256)
	msg := wire.NewMessage(wire.CmdPing, wire.KeySeq, "1")

	if err := wire.NewEncoder().AppendPacket(buf, msg, true); err != nil {
		fmt.Println("encode:", err)
		return
	}

	body, n, _ := wire.SplitPacket(buf.Bytes(), true, 0)
	fmt.Printf("%d %q\n", n, body)
	// Output: 27 "command=ping\r\nseq=1\r\n\r\n"
}
