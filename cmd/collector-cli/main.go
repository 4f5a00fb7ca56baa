package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pior/collector"
	"github.com/pior/collector/wire"
)

func main() {
	var (
		addr    = flag.String("addr", "localhost:9300", "Collector address")
		framing = flag.String("framing", "packet", "Framing: packet or line")
		timeout = flag.Duration("timeout", 5*time.Second, "Timeout of each command")
	)
	flag.Parse()

	fmt.Println("Collector CLI Tool")
	fmt.Println("==================")
	fmt.Println("Commands: ping, report <source> <name>=<value> ..., send <command> <name>=<value> ..., quit")
	fmt.Println()

	cfg := collector.DefaultClientConfig()
	cfg.Framing = collector.Framing(*framing)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	client, err := collector.Dial(ctx, *addr, cfg)
	cancel()
	if err != nil {
		fmt.Printf("Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	repl(os.Stdin, os.Stdout, client, *timeout)
}

func repl(in io.Reader, out io.Writer, client *collector.ClientConn, timeout time.Duration) {
	scanner := bufio.NewScanner(in)
	seq := 0
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		command := strings.ToLower(parts[0])
		seq++

		switch command {
		case "ping":
			send(out, client, timeout, wire.NewMessage(wire.CmdPing, wire.KeySeq, strconv.Itoa(seq)))

		case "report":
			if len(parts) < 3 {
				fmt.Fprintln(out, "Usage: report <source> <name>=<value> ...")
				continue
			}
			msg, err := buildMessage(wire.CmdReport, parts[2:])
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			msg.Fields = append([]wire.Field{
				{Name: wire.KeySource, Value: parts[1]},
				{Name: wire.KeySeq, Value: strconv.Itoa(seq)},
			}, msg.Fields...)
			send(out, client, timeout, msg)

		case "send":
			if len(parts) < 3 {
				fmt.Fprintln(out, "Usage: send <command> <name>=<value> ...")
				continue
			}
			msg, err := buildMessage(parts[1], parts[2:])
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			send(out, client, timeout, msg)

		case "help":
			fmt.Fprintln(out, "Commands:")
			fmt.Fprintln(out, "  ping                              - Round trip to the server")
			fmt.Fprintln(out, "  report <source> <name>=<value>    - Report numeric values for a source")
			fmt.Fprintln(out, "  send <command> <name>=<value>     - Send an arbitrary message")
			fmt.Fprintln(out, "  quit                              - Exit the CLI")

		case "quit", "exit":
			fmt.Fprintln(out, "Goodbye!")
			return

		default:
			fmt.Fprintf(out, "Unknown command: %s. Type 'help' for available commands.\n", command)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(out, "Error reading input: %v\n", err)
	}
}

// buildMessage parses name=value arguments into a message.
func buildMessage(command string, args []string) (wire.Message, error) {
	msg := wire.Message{Command: command}
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, wire.EqualSign)
		if !ok || name == "" {
			return wire.Message{}, fmt.Errorf("invalid field %q, expected name=value", arg)
		}
		msg.Fields = append(msg.Fields, wire.Field{Name: name, Value: value})
	}
	return msg, nil
}

func send(out io.Writer, client *collector.ClientConn, timeout time.Duration, msg wire.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	replies, err := client.Do(ctx, msg)
	duration := time.Since(start)

	if err != nil {
		fmt.Fprintf(out, "Error: %v (took %v)\n", err, duration)
		return
	}

	reply := replies[0]
	fmt.Fprintf(out, "%s (took %v)\n", reply.Command, duration)
	for _, f := range reply.Fields {
		fmt.Fprintf(out, "  %s=%s\n", f.Name, f.Value)
	}
}
