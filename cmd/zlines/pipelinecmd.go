package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"

	"github.com/chartrbio/zlines/internal/pipeline"
	"github.com/chartrbio/zlines/internal/zlines"
)

// cmdPipeline implements `zlines pipeline [-b <block_size>] [-workers N]
// [-manifest <path>] -outdir <dir> <text-input>...`: ingests each input
// file as an independent shard across a worker pool.
func cmdPipeline(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("pipeline", flag.ExitOnError)
	blockSize := fset.Int("b", 0, "block capacity in bytes per shard (default 4 MiB)")
	workers := fset.Int("workers", 0, "number of shards to ingest concurrently (default GOMAXPROCS)")
	outDir := fset.String("outdir", ".", "directory to write each shard's .zlines file into")
	manifestPath := fset.String("manifest", "", "path to write a pgzip-compressed manifest to")
	fset.Parse(args)

	rest := fset.Args()
	if len(rest) == 0 {
		fmt.Fprintf(os.Stderr, "usage: zlines pipeline [-b <size>] [-workers N] [-manifest <path>] -outdir <dir> <text-input>...\n")
		os.Exit(2)
	}

	shards := make([]pipeline.Shard, len(rest))
	closers := make([]io.Closer, len(rest))
	for i, path := range rest {
		f, err := os.Open(path)
		if err != nil {
			return xerrors.Errorf("pipeline: %w", err)
		}
		closers[i] = f
		shards[i] = pipeline.Shard{
			Name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Source: scannerSource(f),
			Config: zlines.Config{BlockCapacity: *blockSize},
		}
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	results, err := pipeline.Run(ctx, shards, pipeline.Options{
		OutDir:       *outDir,
		Workers:      *workers,
		ManifestPath: *manifestPath,
	})
	if err != nil {
		return xerrors.Errorf("pipeline: %w", err)
	}

	for _, r := range results {
		fmt.Printf("%s: %d lines, %d bytes -> %s\n", r.Name, r.Lines, r.Bytes, r.Path)
	}
	return nil
}

// scannerSource adapts a bufio.Scanner over r to a pipeline.LineSource.
func scannerSource(r io.Reader) pipeline.LineSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<30)
	return func() ([]byte, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		line := make([]byte, len(sc.Bytes()))
		copy(line, sc.Bytes())
		return line, nil
	}
}
