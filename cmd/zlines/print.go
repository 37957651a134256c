package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"

	"golang.org/x/xerrors"

	"github.com/chartrbio/zlines/internal/zlines"
)

// cmdPrint implements `zlines print <zlines-file>`: prints every line in
// ordinal order.
func cmdPrint(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("print", flag.ExitOnError)
	fset.Parse(args)
	rest := fset.Args()
	if len(rest) != 1 {
		fmt.Fprintf(os.Stderr, "usage: zlines print <zlines-file>\n")
		os.Exit(2)
	}

	store, err := zlines.Open(rest[0], zlines.OpenOptions{})
	if err != nil {
		return xerrors.Errorf("print: %w", err)
	}
	defer store.Close()

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for i := uint64(0); i < store.LineCount(); i++ {
		line, err := store.GetLine(i)
		if err != nil {
			return xerrors.Errorf("print: line %d: %w", i, err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	return nil
}
