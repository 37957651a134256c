package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/xerrors"

	"github.com/chartrbio/zlines/internal/zlines"
)

// cmdGet implements `zlines get <zlines-file> <idx>...`: prints the
// requested lines, one per line of output, in the order given.
func cmdGet(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("get", flag.ExitOnError)
	fset.Parse(args)
	rest := fset.Args()
	if len(rest) < 2 {
		fmt.Fprintf(os.Stderr, "usage: zlines get <zlines-file> <idx>...\n")
		os.Exit(2)
	}

	store, err := zlines.Open(rest[0], zlines.OpenOptions{})
	if err != nil {
		return xerrors.Errorf("get: %w", err)
	}
	defer store.Close()

	for _, arg := range rest[1:] {
		idx, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return xerrors.Errorf("get: invalid line index %q: %w", arg, err)
		}
		line, err := store.GetLine(idx)
		if err != nil {
			return xerrors.Errorf("get: %w", err)
		}
		os.Stdout.Write(line)
		os.Stdout.Write([]byte("\n"))
	}
	return nil
}
