package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"

	"golang.org/x/xerrors"

	"github.com/chartrbio/zlines/internal/zlines"
)

const maxMismatches = 10

// cmdVerify implements `zlines verify <text-file> <zlines-file>`: a
// line-by-line comparison between the original text and the store's
// round-tripped content, aborting after maxMismatches discrepancies.
func cmdVerify(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("verify", flag.ExitOnError)
	fset.Parse(args)
	rest := fset.Args()
	if len(rest) != 2 {
		fmt.Fprintf(os.Stderr, "usage: zlines verify <text-file> <zlines-file>\n")
		os.Exit(2)
	}
	textPath, zlinesPath := rest[0], rest[1]

	text, err := os.Open(textPath)
	if err != nil {
		return xerrors.Errorf("verify: %w", err)
	}
	defer text.Close()

	store, err := zlines.Open(zlinesPath, zlines.OpenOptions{})
	if err != nil {
		return xerrors.Errorf("verify: %w", err)
	}
	defer store.Close()

	sc := bufio.NewScanner(text)
	sc.Buffer(make([]byte, 64*1024), 1<<30)

	var idx uint64
	var mismatches int
	for sc.Scan() {
		want := sc.Bytes()
		if idx >= store.LineCount() {
			fmt.Printf("line %d: expected %q, store has only %d lines\n", idx, want, store.LineCount())
			mismatches++
		} else {
			got, err := store.GetLine(idx)
			if err != nil {
				return xerrors.Errorf("verify: line %d: %w", idx, err)
			}
			if !bytes.Equal(got, want) {
				fmt.Printf("line %d: mismatch\n  want: %q\n  got:  %q\n", idx, want, got)
				mismatches++
			}
		}
		if mismatches >= maxMismatches {
			return xerrors.Errorf("verify: aborting after %d mismatches", mismatches)
		}
		idx++
	}
	if err := sc.Err(); err != nil {
		return xerrors.Errorf("verify: reading %s: %w", textPath, err)
	}

	if idx != store.LineCount() {
		return xerrors.Errorf("verify: text file has %d lines, store has %d", idx, store.LineCount())
	}
	if mismatches > 0 {
		return xerrors.Errorf("verify: %d mismatches found", mismatches)
	}
	fmt.Printf("%d lines verified, no mismatches\n", idx)
	return nil
}
