// Command shmipc-bench is a producer/consumer test harness for the shm
// queue engine, generalizing original_source/test.cc's bounded exchange to
// a configurable record count and segment name.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	flag "github.com/spf13/pflag"

	"github.com/shmipc/shmipc/shm"
)

// message is the fixed-width record exchanged by the harness: eight
// 64-bit words, matching original_source/test.cc's Message{m[8]}.
type message struct {
	words [8]uint64
}

const progressEvery = 1_000_000

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("shmipc-bench", flag.ContinueOnError)
	fs.SetOutput(stderr)

	role := fs.String("role", "", `dispatch as "producer" or "consumer"`)
	name := fs.String("name", "shmipc_bench", "shared memory segment name")
	count := fs.Uint64("count", 100000, "number of records to exchange")
	initialCapacity := fs.Uint64("initial-capacity", shm.DefaultInitialCapacity, "initial ring capacity (power of two)")
	unlinkAfter := fs.Bool("unlink", false, "unlink the segment after the consumer finishes")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}

		return 2
	}

	switch *role {
	case "producer":
		return produce(*name, *initialCapacity, *count, stdout, stderr)
	case "consumer":
		return consume(*name, *initialCapacity, *count, *unlinkAfter, stdout, stderr)
	default:
		fmt.Fprintln(stderr, `error: --role must be "producer" or "consumer"`)
		return 2
	}
}

func produce(name string, initialCapacity, count uint64, stdout, stderr io.Writer) int {
	seg, err := shm.Open(name)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer seg.Close() //nolint:errcheck

	q, err := shm.Attach[message](seg, initialCapacity)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	fmt.Fprintln(stdout, "producer starting up")

	for seq := uint64(0); seq < count; seq++ {
		if seq%progressEvery == 0 {
			fmt.Fprintf(stdout, "seq: %d\n", seq)
		}

		var m message
		for i := range m.words {
			m.words[i] = seq
		}

		if err := q.Push(m, true); err != nil {
			fmt.Fprintln(stderr, "error: push failed:", err)
			return 1
		}
	}

	fmt.Fprintln(stdout, "producer done")

	return 0
}

func consume(name string, initialCapacity, count uint64, unlinkAfter bool, stdout, stderr io.Writer) int {
	seg, err := shm.Open(name)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	q, err := shm.Attach[message](seg, initialCapacity)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	fmt.Fprintln(stdout, "consumer starting up")

	for seq := uint64(0); seq < count; seq++ {
		if seq%progressEvery == 0 {
			fmt.Fprintf(stdout, "seq: %d\n", seq)
		}

		var m message
		for {
			err := q.Pop(&m)
			if err == nil {
				break
			}

			if !errors.Is(err, shm.ErrQueueEmpty) {
				fmt.Fprintln(stderr, "error: pop failed:", err)
				return 1
			}

			runtime.Gosched()
		}

		for _, w := range m.words {
			if w != seq {
				fmt.Fprintf(stderr, "error: sequence mismatch: got %d want %d\n", w, seq)
				return 1
			}
		}
	}

	fmt.Fprintln(stdout, "consumer done")

	if unlinkAfter {
		if err := seg.Unlink(); err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}

		return 0
	}

	if err := seg.Close(); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	return 0
}
