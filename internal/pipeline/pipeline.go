// Package pipeline is the Go-native analogue of the original system's
// MPI-based chunked compressor pipeline: a set of independent ingestion
// shards, each producing its own zlines file with no shared mutable state,
// run across a worker pool and joined at the end. Where the original used
// rank-parallel MPI processes, this uses goroutines — one worker per
// logical rank, one *zlines.Store per worker, satisfying zlines's "one
// FileState per thread" rule by construction.
package pipeline

import (
	"context"
	"io"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/chartrbio/zlines/internal/zlines"
)

// LineSource yields successive lines for one shard, returning io.EOF once
// exhausted. Implementations need not be safe for concurrent use: each
// LineSource is drained by exactly one worker goroutine.
type LineSource func() ([]byte, error)

// Shard is one independent unit of ingestion work: its lines are written,
// in order, to their own output file.
type Shard struct {
	// Name identifies the shard; it is used to derive the output filename
	// (Name+".zlines" under Options.OutDir) and as the manifest key.
	Name string

	Source LineSource
	Config zlines.Config
}

// Options configures a pipeline run.
type Options struct {
	// OutDir is the directory each shard's .zlines file is written into.
	OutDir string

	// Workers bounds the number of shards processed concurrently. Zero
	// selects runtime.GOMAXPROCS(0), mirroring one-rank-per-core MPI
	// scheduling.
	Workers int

	// ManifestPath, if non-empty, receives a pgzip-compressed manifest
	// listing every shard's output path, line count and byte count.
	ManifestPath string
}

// ShardResult reports the outcome of ingesting one shard.
type ShardResult struct {
	Name  string
	Path  string
	Lines uint64
	Bytes uint64
}

// Run partitions shards across a worker pool, writes each to its own
// zlines file under opts.OutDir, and — if opts.ManifestPath is set —
// archives a combined manifest of the results. It returns as soon as the
// first worker fails, cancelling the others via the shared errgroup
// context. Each worker owns a distinct *zlines.Store for the run's
// duration, so no store is ever touched by more than one goroutine.
func Run(ctx context.Context, shards []Shard, opts Options) ([]ShardResult, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, workers)
	results := make([]ShardResult, len(shards))
	resultsCh := make(chan ShardResult, len(shards))

	for i, shard := range shards {
		i, shard := i, shard
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			res, err := runShard(gctx, shard, opts.OutDir)
			if err != nil {
				return xerrors.Errorf("shard %s: %w", shard.Name, err)
			}
			results[i] = res
			resultsCh <- res
			return nil
		})
	}

	manifestDone := make(chan error, 1)
	if opts.ManifestPath != "" {
		go func() {
			manifestDone <- buildAndArchiveManifest(resultsCh, opts.ManifestPath)
		}()
	} else {
		go func() {
			for range resultsCh {
			}
			manifestDone <- nil
		}()
	}

	runErr := g.Wait()
	close(resultsCh)
	manifestErr := <-manifestDone

	if runErr != nil {
		return nil, runErr
	}
	if manifestErr != nil {
		return nil, manifestErr
	}
	return results, nil
}

func runShard(ctx context.Context, shard Shard, outDir string) (ShardResult, error) {
	path := filepath.Join(outDir, shard.Name+".zlines")
	store, err := zlines.Create(path, shard.Config)
	if err != nil {
		return ShardResult{}, err
	}

	var lines, bytesWritten uint64
	for {
		if err := ctx.Err(); err != nil {
			store.Close()
			return ShardResult{}, err
		}
		line, err := shard.Source()
		if err != nil {
			if err == io.EOF {
				break
			}
			store.Close()
			return ShardResult{}, xerrors.Errorf("reading shard %s: %w", shard.Name, err)
		}
		if err := store.AppendLine(line); err != nil {
			store.Close()
			return ShardResult{}, err
		}
		lines++
		bytesWritten += uint64(len(line))
	}

	if err := store.Close(); err != nil {
		return ShardResult{}, err
	}
	return ShardResult{Name: shard.Name, Path: path, Lines: lines, Bytes: bytesWritten}, nil
}
