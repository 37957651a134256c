package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/chartrbio/zlines/internal/zlines"
)

func linesOf(n int, prefix string) LineSource {
	i := 0
	return func() ([]byte, error) {
		if i >= n {
			return nil, io.EOF
		}
		i++
		return []byte(fmt.Sprintf("%s-%d", prefix, i)), nil
	}
}

func TestRunProducesOneFilePerShard(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	shards := []Shard{
		{Name: "a", Source: linesOf(10, "a")},
		{Name: "b", Source: linesOf(20, "b")},
		{Name: "c", Source: linesOf(5, "c")},
	}

	results, err := Run(context.Background(), shards, Options{OutDir: dir, Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	want := map[string]uint64{"a": 10, "b": 20, "c": 5}
	for _, r := range results {
		if r.Lines != want[r.Name] {
			t.Errorf("shard %s: %d lines, want %d", r.Name, r.Lines, want[r.Name])
		}
		if _, err := os.Stat(r.Path); err != nil {
			t.Errorf("shard %s: output file missing: %v", r.Name, err)
		}

		s, err := zlines.Open(r.Path, zlines.OpenOptions{})
		if err != nil {
			t.Fatalf("opening shard %s output: %v", r.Name, err)
		}
		if s.LineCount() != want[r.Name] {
			t.Errorf("shard %s: store has %d lines, want %d", r.Name, s.LineCount(), want[r.Name])
		}
		s.Close()
	}
}

func TestRunWithManifest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.gz")

	shards := []Shard{
		{Name: "only", Source: linesOf(3, "x")},
	}
	if _, err := Run(context.Background(), shards, Options{OutDir: dir, ManifestPath: manifestPath}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(manifestPath); err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
}

type errSource struct{ called int }

func (e *errSource) next() ([]byte, error) {
	e.called++
	if e.called > 2 {
		return nil, fmt.Errorf("boom")
	}
	return []byte("ok"), nil
}

func TestRunPropagatesShardError(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	es := &errSource{}

	shards := []Shard{
		{Name: "bad", Source: es.next},
	}
	if _, err := Run(context.Background(), shards, Options{OutDir: dir}); err == nil {
		t.Fatal("Run with a failing shard: want error, got nil")
	}
}
