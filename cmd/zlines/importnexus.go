package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/renameio"
	"golang.org/x/xerrors"

	"github.com/chartrbio/zlines/internal/nexus"
	"github.com/chartrbio/zlines/internal/zlines"
)

// cmdImportNexus implements `zlines import-nexus [-b <block_size>]
// <nexus-file> <zlines-output>`: parses a NEXUS character matrix and feeds
// one line per taxon to a new zlines store, in the order the taxa appear in
// the MATRIX statement.
func cmdImportNexus(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("import-nexus", flag.ExitOnError)
	blockSize := fset.Int("b", 0, "block capacity in bytes (default 4 MiB)")
	fset.Parse(args)

	rest := fset.Args()
	if len(rest) != 2 {
		fmt.Fprintf(os.Stderr, "usage: zlines import-nexus [-b <block_size>] <nexus-file> <zlines-output>\n")
		os.Exit(2)
	}
	inputPath, outputPath := rest[0], rest[1]

	in, err := os.Open(inputPath)
	if err != nil {
		return xerrors.Errorf("import-nexus: %w", err)
	}
	defer in.Close()

	seqs, err := nexus.ParseMatrix(in)
	if err != nil {
		return xerrors.Errorf("import-nexus: %w", err)
	}

	out, err := renameio.TempFile("", outputPath)
	if err != nil {
		return xerrors.Errorf("import-nexus: %w", err)
	}
	defer out.Cleanup()

	// See cmd/zlines/create.go: zlines.Create needs its own seekable fd.
	store, err := zlines.Create(out.Name(), zlines.Config{BlockCapacity: *blockSize})
	if err != nil {
		return xerrors.Errorf("import-nexus: %w", err)
	}
	for _, seq := range seqs {
		if err := store.AppendLine(seq.Data); err != nil {
			store.Close()
			return xerrors.Errorf("import-nexus: taxon %s: %w", seq.Taxon, err)
		}
	}
	if err := store.Close(); err != nil {
		return xerrors.Errorf("import-nexus: %w", err)
	}
	if err := out.CloseAtomicallyReplace(); err != nil {
		return xerrors.Errorf("import-nexus: %w", err)
	}
	fmt.Printf("%d taxa imported\n", len(seqs))
	return nil
}
