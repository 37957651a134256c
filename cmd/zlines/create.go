package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/renameio"
	"github.com/mattn/go-isatty"
	"golang.org/x/xerrors"

	"github.com/chartrbio/zlines/internal/zlines"
)

// cmdCreate implements `zlines create [-b <block_size>] <text-input>
// <zlines-output>`: reads newline-delimited text, appends each stripped
// line in order. The output is written through renameio so a crash or an
// error mid-ingest never leaves a half-written file at the destination
// path.
func cmdCreate(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("create", flag.ExitOnError)
	blockSize := fset.Int("b", 0, "block capacity in bytes (default 4 MiB)")
	compressIndex := fset.Bool("zi", false, "compress the block index and first-line table")
	fset.Parse(args)

	rest := fset.Args()
	if len(rest) != 2 {
		fmt.Fprintf(os.Stderr, "usage: zlines create [-b <block_size>] <text-input> <zlines-output>\n")
		os.Exit(2)
	}
	inputPath, outputPath := rest[0], rest[1]

	in, err := os.Open(inputPath)
	if err != nil {
		return xerrors.Errorf("create: %w", err)
	}
	defer in.Close()

	out, err := renameio.TempFile("", outputPath)
	if err != nil {
		return xerrors.Errorf("create: %w", err)
	}
	defer out.Cleanup()

	// zlines.Create needs to seek and rewrite its own header on Close, so
	// it opens out.Name() itself rather than writing through out's
	// sequential io.Writer; the rename to outputPath still only happens
	// once CloseAtomicallyReplace runs below.
	progress := newProgressReporter(os.Stderr)
	store, err := zlines.Create(out.Name(), zlines.Config{
		BlockCapacity: *blockSize,
		CompressIndex: *compressIndex,
		OnProgress:    progress.report,
	})
	if err != nil {
		return xerrors.Errorf("create: %w", err)
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1<<30)
	for sc.Scan() {
		// An over-size line is kept by reference until the next flush, and
		// the next Scan may overwrite sc.Bytes(), so each line is copied.
		line := make([]byte, len(sc.Bytes()))
		copy(line, sc.Bytes())
		if err := store.AppendLine(line); err != nil {
			store.Close()
			return xerrors.Errorf("create: append: %w", err)
		}
	}
	if err := sc.Err(); err != nil && err != io.EOF {
		store.Close()
		return xerrors.Errorf("create: reading %s: %w", inputPath, err)
	}
	progress.finish()

	if err := store.Close(); err != nil {
		return xerrors.Errorf("create: %w", err)
	}

	if err := out.CloseAtomicallyReplace(); err != nil {
		return xerrors.Errorf("create: %w", err)
	}
	return nil
}

// progressReporter prints an ingest progress line, using a carriage-return
// terminal update when stderr is a tty and periodic newline-terminated
// status lines otherwise.
type progressReporter struct {
	w    io.Writer
	tty  bool
	last uint64
}

func newProgressReporter(w *os.File) *progressReporter {
	return &progressReporter{w: w, tty: isatty.IsTerminal(w.Fd())}
}

func (p *progressReporter) report(linesSoFar, bytesSoFar uint64) {
	const reportEvery = 100000
	if linesSoFar-p.last < reportEvery && linesSoFar != 0 {
		return
	}
	p.last = linesSoFar
	if p.tty {
		fmt.Fprintf(p.w, "\r%d lines, %d bytes", linesSoFar, bytesSoFar)
	} else {
		fmt.Fprintf(p.w, "%d lines, %d bytes\n", linesSoFar, bytesSoFar)
	}
}

func (p *progressReporter) finish() {
	if p.tty {
		fmt.Fprintf(p.w, "\n")
	}
}
