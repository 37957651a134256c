package zlines

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func tempPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.zlines")
}

func TestSingleLineRoundTrip(t *testing.T) {
	t.Parallel()
	path := tempPath(t)

	s, err := Create(path, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AppendLine([]byte("foo")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path, OpenOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if got := s.LineCount(); got != 1 {
		t.Fatalf("LineCount() = %d, want 1", got)
	}
	if got, err := s.LineLength(0); err != nil || got != 3 {
		t.Fatalf("LineLength(0) = %d, %v, want 3, nil", got, err)
	}
	line, err := s.GetLine(0)
	if err != nil || string(line) != "foo" {
		t.Fatalf("GetLine(0) = %q, %v, want \"foo\", nil", line, err)
	}
	if _, err := s.GetLine(1); err == nil {
		t.Fatal("GetLine(1) = nil error, want OutOfRangeError")
	} else if _, ok := err.(*OutOfRangeError); !ok {
		t.Fatalf("GetLine(1) error type = %T, want *OutOfRangeError", err)
	}
	if got := s.MaxLineLength(); got != 3 {
		t.Fatalf("MaxLineLength() = %d, want 3", got)
	}
}

func TestMixedLengthLinesRoundTrip(t *testing.T) {
	t.Parallel()
	path := tempPath(t)
	lines := [][]byte{[]byte(""), []byte("a"), []byte("bc"), []byte("def")}

	s, err := Create(path, Config{})
	if err != nil {
		t.Fatal(err)
	}
	for _, l := range lines {
		if err := s.AppendLine(l); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path, OpenOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if got := s.LineCount(); got != uint64(len(lines)) {
		t.Fatalf("LineCount() = %d, want %d", got, len(lines))
	}
	for i, want := range lines {
		got, err := s.GetLine(uint64(i))
		if err != nil {
			t.Fatalf("GetLine(%d): %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("GetLine(%d) = %q, want %q", i, got, want)
		}
		length, err := s.LineLength(uint64(i))
		if err != nil || length != int64(len(want)) {
			t.Errorf("LineLength(%d) = %d, %v, want %d, nil", i, length, err, len(want))
		}
	}
	if got := s.MaxLineLength(); got != 3 {
		t.Fatalf("MaxLineLength() = %d, want 3", got)
	}
}

func TestExactlyFullBlocks(t *testing.T) {
	t.Parallel()
	path := tempPath(t)
	line := []byte("0123456789abcdef") // exactly 16 bytes
	if len(line) != 16 {
		t.Fatal("fixture line must be 16 bytes")
	}

	s, err := Create(path, Config{BlockCapacity: 16})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AppendLine(line); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendLine(line); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path, OpenOptions{LongLineThreshold: 16})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if got := s.block.blockCount(); got != 2 {
		t.Fatalf("blockCount() = %d, want 2", got)
	}
	if len(s.block.firstLineOf) != 1 || s.block.firstLineOf[0] != 1 {
		t.Fatalf("firstLineOf = %v, want [1]", s.block.firstLineOf)
	}
	for i := 0; i < 2; i++ {
		got, err := s.GetLine(uint64(i))
		if err != nil || !bytes.Equal(got, line) {
			t.Errorf("GetLine(%d) = %q, %v, want %q, nil", i, got, err, line)
		}
	}
}

func TestOversizeLineAndPartialRead(t *testing.T) {
	t.Parallel()
	path := tempPath(t)
	long := bytes.Repeat([]byte("x"), 100)
	short := []byte("hello")

	s, err := Create(path, Config{BlockCapacity: 16})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AppendLine(long); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendLine(short); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path, OpenOptions{LongLineThreshold: 16})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if got := s.block.blockCount(); got != 2 {
		t.Fatalf("blockCount() = %d, want 2", got)
	}

	got, err := s.GetLine(0)
	if err != nil || !bytes.Equal(got, long) {
		t.Fatalf("GetLine(0) = %q, %v, want the 100-byte line", got, err)
	}
	got, err = s.GetLine(1)
	if err != nil || !bytes.Equal(got, short) {
		t.Fatalf("GetLine(1) = %q, %v, want %q", got, err, short)
	}

	buf := make([]byte, 11)
	n, err := s.GetLinePartial(0, buf, 90)
	if err != nil {
		t.Fatalf("GetLinePartial: %v", err)
	}
	if n != 10 {
		t.Fatalf("GetLinePartial returned %d data bytes, want 10", n)
	}
	want := long[90:]
	if !bytes.Equal(buf[:n], want) {
		t.Fatalf("GetLinePartial data = %q, want %q", buf[:n], want)
	}
	if buf[n] != 0 {
		t.Fatalf("GetLinePartial did not null-terminate: buf[%d] = %d", n, buf[n])
	}
}

func TestEmptyStore(t *testing.T) {
	t.Parallel()
	path := tempPath(t)

	s, err := Create(path, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path, OpenOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if got := s.LineCount(); got != 0 {
		t.Fatalf("LineCount() = %d, want 0", got)
	}
	if got := s.block.blockCount(); got != 0 {
		t.Fatalf("blockCount() = %d, want 0", got)
	}
	if _, err := s.GetLine(0); err == nil {
		t.Fatal("GetLine(0) on an empty store: want OutOfRangeError, got nil")
	}
}

func TestAppendAfterCloseIsModeError(t *testing.T) {
	t.Parallel()
	path := tempPath(t)

	s, err := Create(path, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendLine([]byte("x")); err == nil {
		t.Fatal("AppendLine after Close: want error, got nil")
	}

	s, err = Open(path, OpenOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.AppendLine([]byte("x")); err == nil {
		t.Fatal("AppendLine on a read-opened store: want *ModeError, got nil")
	} else if _, ok := err.(*ModeError); !ok {
		t.Fatalf("AppendLine error type = %T, want *ModeError", err)
	}
}

func TestCompressedIndexRoundTrip(t *testing.T) {
	t.Parallel()
	path := tempPath(t)

	s, err := Create(path, Config{BlockCapacity: 64, CompressIndex: true})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 50; i++ {
		if err := s.AppendLine(bytes.Repeat([]byte("a"), 20)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path, OpenOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if !s.CompressIndex() {
		t.Fatal("CompressIndex() = false, want true after opening a compressed-index file")
	}
	if got := s.LineCount(); got != 50 {
		t.Fatalf("LineCount() = %d, want 50", got)
	}
	for i := 0; i < 50; i++ {
		got, err := s.GetLine(uint64(i))
		if err != nil || len(got) != 20 {
			t.Fatalf("GetLine(%d) = %q, %v", i, got, err)
		}
	}
}

func TestUnknownAlgorithmRejected(t *testing.T) {
	t.Parallel()
	path := tempPath(t)

	s, err := Create(path, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AppendLine([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	corrupted := bytes.Replace(raw, []byte("alg fzstd\n"), []byte("alg bogus\n"), 1)
	if bytes.Equal(corrupted, raw) {
		t.Fatal("test fixture did not find the alg line to corrupt")
	}
	if err := os.WriteFile(path, corrupted, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = Open(path, OpenOptions{})
	if err == nil {
		t.Fatal("Open with an unknown algorithm identifier: want *FormatError, got nil")
	}
	if _, ok := err.(*FormatError); !ok {
		t.Fatalf("Open error type = %T, want *FormatError", err)
	}
}

func TestManyLinesRandomSample(t *testing.T) {
	t.Parallel()
	path := tempPath(t)

	rng := rand.New(rand.NewSource(1))
	const n = 2000
	lines := make([][]byte, n)
	for i := range lines {
		b := make([]byte, 500)
		rng.Read(b)
		lines[i] = b
	}

	s, err := Create(path, Config{BlockCapacity: 64 << 10})
	if err != nil {
		t.Fatal(err)
	}
	for _, l := range lines {
		if err := s.AppendLine(l); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path, OpenOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if got := s.LineCount(); got != n {
		t.Fatalf("LineCount() = %d, want %d", got, n)
	}
	for i := 0; i < 200; i++ {
		idx := rng.Intn(n)
		got, err := s.GetLine(uint64(idx))
		if err != nil {
			t.Fatalf("GetLine(%d): %v", idx, err)
		}
		if !bytes.Equal(got, lines[idx]) {
			t.Errorf("GetLine(%d) mismatch", idx)
		}
	}
}

func TestLayoutReportsPerBlockLineCounts(t *testing.T) {
	t.Parallel()
	path := tempPath(t)
	line := []byte("0123456789abcdef") // 16 bytes, fills one capacity-16 block

	s, err := Create(path, Config{BlockCapacity: 16})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := s.AppendLine(line); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path, OpenOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got := s.Layout()
	want := []int{1, 1, 1}
	gotCounts := make([]int, len(got))
	for i, d := range got {
		gotCounts[i] = d.LineCount
	}
	if diff := cmp.Diff(want, gotCounts); diff != "" {
		t.Errorf("Layout() line counts mismatch (-want +got):\n%s", diff)
	}
}

func TestPadding8(t *testing.T) {
	t.Parallel()
	cases := []struct{ offset, want int64 }{
		{0, 0}, {1, 7}, {7, 1}, {8, 0}, {9, 7}, {256, 0},
	}
	for _, c := range cases {
		if got := padding8(c.offset); got != c.want {
			t.Errorf("padding8(%d) = %d, want %d", c.offset, got, c.want)
		}
	}
}
