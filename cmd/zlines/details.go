package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"gonum.org/v1/gonum/stat"
	"golang.org/x/xerrors"

	"github.com/chartrbio/zlines/internal/zlines"
)

// cmdDetails implements `zlines details <zlines-file>`: prints the store's
// internal layout plus block occupancy statistics computed with gonum/stat.
func cmdDetails(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("details", flag.ExitOnError)
	fset.Parse(args)
	rest := fset.Args()
	if len(rest) != 1 {
		fmt.Fprintf(os.Stderr, "usage: zlines details <zlines-file>\n")
		os.Exit(2)
	}

	store, err := zlines.Open(rest[0], zlines.OpenOptions{})
	if err != nil {
		return xerrors.Errorf("details: %w", err)
	}
	defer store.Close()

	desc := store.Layout()
	fmt.Printf("file:            %s\n", rest[0])
	fmt.Printf("lines:           %d\n", store.LineCount())
	fmt.Printf("max line length: %d\n", store.MaxLineLength())
	fmt.Printf("blocks:          %d\n", len(desc))
	fmt.Printf("compress_index:  %v\n", store.CompressIndex())

	if len(desc) == 0 {
		return nil
	}

	lineCounts := make([]float64, len(desc))
	compSizes := make([]float64, len(desc))
	for i, d := range desc {
		lineCounts[i] = float64(d.LineCount)
		compSizes[i] = float64(d.CompressedLength)
	}
	meanLines, stddevLines := stat.MeanStdDev(lineCounts, nil)
	meanComp, stddevComp := stat.MeanStdDev(compSizes, nil)
	fmt.Printf("lines/block:     mean %.1f, stddev %.1f\n", meanLines, stddevLines)
	fmt.Printf("compressed/block: mean %.1f, stddev %.1f bytes\n", meanComp, stddevComp)

	for i, d := range desc {
		fmt.Printf("  block %d: offset=%d lines=%d compressed=%d decompressed=%d subindex_compressed=%v\n",
			i, d.FileOffset, d.LineCount, d.CompressedLength, d.DecompressedLength, d.SubindexCompressed)
	}
	return nil
}
