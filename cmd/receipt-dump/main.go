// Command receipt-dump renders a template or receipt to ESC/POS and prints
// the bytes as a hex dump, without touching a printer. Useful for checking
// layout changes and for piping raw jobs to other tools.
//
// Usage:
//
//	go run ./cmd/receipt-dump [-template "Simple Receipt" | -template file.yaml]
//	go run ./cmd/receipt-dump -receipt receipt.json [-width 48] [-currency EUR]
//	go run ./cmd/receipt-dump -test -raw > job.bin
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Tabonx/papyrus/internal/ble/protocol"
	"github.com/Tabonx/papyrus/internal/receipt"
)

func main() {
	tmplArg := flag.String("template", "", "built-in template name or template file")
	recArg := flag.String("receipt", "", "receipt JSON file")
	testRec := flag.Bool("test", false, "render the built-in test receipt")
	width := flag.Int("width", 32, "characters per line")
	currency := flag.String("currency", "CZK", "ISO 4217 currency code")
	raw := flag.Bool("raw", false, "write raw bytes to stdout instead of a hex dump")
	chunk := flag.Int("chunk", 0, "also report how many writes of this size the job needs")
	flag.Parse()

	opts := receipt.DefaultFormatterOptions()
	opts.CharsPerLine = *width
	opts.Currency = *currency
	f, err := receipt.NewFormatter(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var data []byte
	switch {
	case *tmplArg != "":
		t, ok := receipt.Builtin(*tmplArg)
		if !ok {
			if t, err = receipt.LoadTemplate(*tmplArg); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}
		data = f.FormatTemplate(t)
	case *recArg != "":
		r, err := receipt.LoadRecord(*recArg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		data = f.FormatReceipt(r, nil, nil)
	case *testRec:
		data = f.FormatReceipt(receipt.TestRecord(time.Now()), nil, nil)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if *raw {
		os.Stdout.Write(data) //nolint:errcheck
		return
	}

	fmt.Print(hex.Dump(data))
	fmt.Printf("\n%d bytes", len(data))
	if *chunk > 0 {
		fmt.Printf(", %d writes of %d bytes", len(protocol.ChunkBytes(data, *chunk)), *chunk)
	}
	fmt.Println()
}
