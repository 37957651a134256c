// Package zlines implements a write-once, read-many, block-compressed
// random-access line store: producers append opaque byte-string lines
// sequentially, and consumers open the resulting file and fetch any line
// by its ordinal index without decompressing the whole file.
package zlines

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// mode tracks which phase of its lifecycle a Store is in.
type mode int

const (
	modeCreated mode = iota
	modeReading
	modeClosed
)

func (m mode) String() string {
	switch m {
	case modeCreated:
		return "open for writing"
	case modeReading:
		return "open for reading"
	default:
		return "closed"
	}
}

const (
	// defaultBlockCapacity is the nominal content size of one block
	// before it is flushed, and (absent an override) the threshold above
	// which a single line is stored in a block of its own.
	defaultBlockCapacity = 4 << 20 // 4 MiB

	// maxBlockCapacity caps block size at 2 GiB (inclusive), so that in-block
	// offsets fit comfortably in the LinePosition/BlockDescriptor 64-bit
	// fields with headroom for arithmetic.
	maxBlockCapacity = 2 << 30 // 2 GiB
)

// ProgressFunc is invoked at the implementer's discretion during ingest
// with the number of lines and content bytes appended so far.
type ProgressFunc func(linesSoFar, bytesSoFar uint64)

// Config carries the create-time knobs for a new store.
type Config struct {
	// BlockCapacity bounds the staging content buffer per block and
	// doubles as the over-size-line threshold. Zero selects
	// defaultBlockCapacity.
	BlockCapacity int

	// CompressIndex requests that the block index and first-line table be
	// one-shot-compressed in the index section.
	CompressIndex bool

	// OnProgress, if non-nil, is invoked after every successful
	// AppendLine call.
	OnProgress ProgressFunc
}

// OpenOptions carries open-for-read knobs. Unlike Config, these do not
// affect the on-disk format: they only affect how much the reader
// allocates up front and where it draws the long-line threshold, since
// BlockCapacity itself is not persisted in the header.
type OpenOptions struct {
	// LongLineThreshold selects the decompressed-length cutoff above which
	// a single-line block is treated as deferred (long-line path) rather
	// than eagerly decompressed into the Read Block cache. Zero selects
	// defaultBlockCapacity.
	LongLineThreshold int
}

// Store is the single entry point for one open zlines file, orchestrating
// the block index, write block, read block and on-disk layout. A Store is
// exclusively owned by its creator; sharing one across goroutines requires
// external serialization.
type Store struct {
	filename string
	f        *os.File
	mode     mode
	locked   bool

	lineCount     uint64
	maxLineLength uint64

	longLineThreshold int
	compressIndex     bool
	nextOffset        int64

	codec *codec
	block *blockIndex
	wb    *writeBlock
	rb    *readBlock

	onProgress ProgressFunc
	bytesSoFar uint64

	poisoned error
}

// Create opens filename for writing, truncating any existing content, and
// returns a Store ready to accept AppendLine calls.
func Create(filename string, cfg Config) (*Store, error) {
	capacity := cfg.BlockCapacity
	if capacity == 0 {
		capacity = defaultBlockCapacity
	}
	if capacity <= 0 || capacity > maxBlockCapacity {
		return nil, &ResourceError{Filename: filename, Detail: "block capacity must be in (0, 2 GiB]"}
	}

	f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, &IOError{Filename: filename, Op: "open", Err: err}
	}

	// Reject a concurrent writer outright: the header is rewritten only
	// on Close, so two writers interleaving would corrupt the file
	// silently.
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, &IOError{Filename: filename, Op: "flock", Err: err}
	}

	c, err := newCodec()
	if err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, xerrors.Errorf("zlines.Create: %w", err)
	}

	if err := writeHeader(f, fileHeader{compressIndex: cfg.CompressIndex}); err != nil {
		c.close()
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, &IOError{Filename: filename, Op: "write placeholder header", Err: err}
	}
	if _, err := f.Seek(dataSectionOffset, io.SeekStart); err != nil {
		c.close()
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, &IOError{Filename: filename, Op: "seek", Err: err}
	}

	wb := newWriteBlock(capacity)
	wb.fileOffset = dataSectionOffset

	return &Store{
		filename:          filename,
		f:                 f,
		mode:              modeCreated,
		locked:            true,
		longLineThreshold: capacity,
		compressIndex:     cfg.CompressIndex,
		nextOffset:        dataSectionOffset,
		codec:             c,
		block:             &blockIndex{},
		wb:                wb,
		rb:                newReadBlock(capacity),
		onProgress:        cfg.OnProgress,
	}, nil
}

// Open opens an existing zlines file for reading.
func Open(filename string, opts OpenOptions) (*Store, error) {
	threshold := opts.LongLineThreshold
	if threshold == 0 {
		threshold = defaultBlockCapacity
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, &IOError{Filename: filename, Op: "open", Err: err}
	}

	hdr, err := readHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	if _, err := f.Seek(hdr.indexOffset, io.SeekStart); err != nil {
		f.Close()
		return nil, &IOError{Filename: filename, Op: "seek to index", Err: err}
	}

	c, err := newCodec()
	if err != nil {
		f.Close()
		return nil, xerrors.Errorf("zlines.Open: %w", err)
	}

	bi, err := readIndexSection(f, c, hdr.blocks, hdr.compressIndex)
	if err != nil {
		c.close()
		f.Close()
		return nil, err
	}
	if err := bi.validate(hdr.lineCount); err != nil {
		c.close()
		f.Close()
		return nil, err
	}

	maxDecompressed := threshold
	for i, d := range bi.blocks {
		if int(d.DecompressedLength) > maxDecompressed && !isDeferredBlock(bi, i, hdr.lineCount, d, threshold) {
			maxDecompressed = int(d.DecompressedLength)
		}
	}

	return &Store{
		filename:          filename,
		f:                 f,
		mode:              modeReading,
		longLineThreshold: threshold,
		compressIndex:     hdr.compressIndex,
		lineCount:         hdr.lineCount,
		maxLineLength:     hdr.maxLineLength,
		nextOffset:        hdr.indexOffset,
		codec:             c,
		block:             bi,
		rb:                newReadBlock(maxDecompressed),
	}, nil
}

// isDeferredBlock reports whether block i would be treated as an over-size
// single-line block under the read-side threshold: it holds exactly one
// line and its decompressed length exceeds threshold. Mirrors
// loadReadBlock's own deferred test so Open sizes the read block cache to
// the largest block it will ever fully materialize, not the largest block
// on disk (a deferred block is never copied into the cache).
func isDeferredBlock(bi *blockIndex, i int, lineCount uint64, d BlockDescriptor, threshold int) bool {
	firstOfBlock := uint64(0)
	if i > 0 {
		firstOfBlock = bi.firstLineOf[i-1]
	}
	nextFirst := lineCount
	if i < len(bi.blocks)-1 {
		nextFirst = bi.firstLineOf[i]
	}
	return int(nextFirst-firstOfBlock) == 1 && int(d.DecompressedLength) > threshold
}

// LineCount returns the number of lines appended so far (write mode) or
// stored in the file (read mode).
func (s *Store) LineCount() uint64 { return s.lineCount }

// MaxLineLength returns the length of the longest line seen so far.
func (s *Store) MaxLineLength() uint64 { return s.maxLineLength }

// CompressIndex reports whether the block index and first-line table are
// (or, in write mode, will be) stored compressed.
func (s *Store) CompressIndex() bool { return s.compressIndex }

// BlockDetail describes one on-disk block for introspection tools (the
// `details` CLI subcommand); it is a read-only projection of a
// BlockDescriptor plus the line count derived from the first-line table.
type BlockDetail struct {
	FileOffset         uint64
	LineCount          int
	CompressedLength   uint64
	DecompressedLength uint64
	SubindexCompressed bool
}

// Layout returns one BlockDetail per block currently in the Block Index, in
// file_offset order.
func (s *Store) Layout() []BlockDetail {
	n := s.block.blockCount()
	out := make([]BlockDetail, n)
	for i, d := range s.block.blocks {
		first := uint64(0)
		if i > 0 {
			first = s.block.firstLineOf[i-1]
		}
		next := s.lineCount
		if i < n-1 {
			next = s.block.firstLineOf[i]
		}
		out[i] = BlockDetail{
			FileOffset:         d.FileOffset,
			LineCount:          int(next - first),
			CompressedLength:   d.compressedLen(),
			DecompressedLength: d.DecompressedLength,
			SubindexCompressed: d.hasCompressedSubindex(),
		}
	}
	return out
}

// LineLength returns the length of line L, or -1 with an *OutOfRangeError
// if L >= LineCount().
func (s *Store) LineLength(line uint64) (int64, error) {
	if line >= s.lineCount {
		return -1, &OutOfRangeError{Filename: s.filename, Index: int64(line), Count: int64(s.lineCount)}
	}
	ref, err := s.locate(line)
	if err != nil {
		return -1, err
	}
	return int64(ref.pos.Length), nil
}

// GetLine returns a copy of line L's bytes. Out-of-range indices fail with
// an *OutOfRangeError.
func (s *Store) GetLine(line uint64) ([]byte, error) {
	if line >= s.lineCount {
		return nil, &OutOfRangeError{Filename: s.filename, Index: int64(line), Count: int64(s.lineCount)}
	}
	ref, err := s.locate(line)
	if err != nil {
		return nil, err
	}

	out := make([]byte, ref.pos.Length)
	if ref.deferred {
		if _, err := s.f.Seek(ref.dataStart, io.SeekStart); err != nil {
			return nil, &IOError{Filename: s.filename, Op: "seek to deferred line", Err: err}
		}
		n, err := s.codec.streamDecompressFromFile(s.f, ref.compLen, 0, out)
		if err != nil {
			return nil, &CodecError{Filename: s.filename, Block: -1, Err: err}
		}
		if uint64(n) != ref.pos.Length {
			return nil, &FormatError{Filename: s.filename, Detail: "deferred line decompressed to an unexpected size"}
		}
		return out, nil
	}

	copy(out, ref.content[ref.pos.OffsetInBlock:ref.pos.OffsetInBlock+ref.pos.Length])
	return out, nil
}

// GetLinePartial copies up to len(buf)-1 bytes of line L starting at byte
// offset off into buf, null-terminating the copied data, and returns the
// number of data bytes written (not counting the terminator). This is the
// primary access path for lines too large to comfortably materialize in
// full: for a deferred block it decompresses directly into buf, discarding
// the first off decompressed bytes, without ever holding the full line in
// memory.
func (s *Store) GetLinePartial(line uint64, buf []byte, off uint64) (int, error) {
	if line >= s.lineCount {
		return 0, &OutOfRangeError{Filename: s.filename, Index: int64(line), Count: int64(s.lineCount)}
	}
	if len(buf) == 0 {
		return 0, &ResourceError{Filename: s.filename, Detail: "GetLinePartial buffer must hold at least the terminator byte"}
	}

	ref, err := s.locate(line)
	if err != nil {
		return 0, err
	}

	if off > ref.pos.Length {
		off = ref.pos.Length
	}
	remaining := ref.pos.Length - off
	maxData := uint64(len(buf) - 1)
	n := remaining
	if n > maxData {
		n = maxData
	}

	if ref.deferred {
		if _, err := s.f.Seek(ref.dataStart, io.SeekStart); err != nil {
			return 0, &IOError{Filename: s.filename, Op: "seek to deferred line", Err: err}
		}
		got, err := s.codec.streamDecompressFromFile(s.f, ref.compLen, int64(off), buf[:n])
		if err != nil {
			return 0, &CodecError{Filename: s.filename, Block: -1, Err: err}
		}
		buf[got] = 0
		return got, nil
	}

	start := ref.pos.OffsetInBlock + off
	copy(buf[:n], ref.content[start:start+n])
	buf[n] = 0
	return int(n), nil
}

// AppendLine appends one line, assigning it the next ordinal index. It
// fails with a *ModeError if the store was not opened for writing.
func (s *Store) AppendLine(line []byte) error {
	if s.mode != modeCreated {
		return &ModeError{Filename: s.filename, Op: "append", Mode: s.mode.String()}
	}
	if s.poisoned != nil {
		return s.poisoned
	}

	for {
		err := s.wb.tryAppend(s.lineCount, line)
		if err == nil {
			break
		}
		if _, ok := err.(errOverflow); ok {
			if ferr := s.flush(); ferr != nil {
				s.poisoned = ferr
				return ferr
			}
			continue
		}
		s.poisoned = err
		return err
	}

	s.lineCount++
	if uint64(len(line)) > s.maxLineLength {
		s.maxLineLength = uint64(len(line))
	}
	s.bytesSoFar += uint64(len(line))
	if s.onProgress != nil {
		s.onProgress(s.lineCount, s.bytesSoFar)
	}
	return nil
}

// flush streams the current write block to disk, appends its descriptor to
// the block index, and recycles the write block for the next one.
func (s *Store) flush() error {
	if s.wb.isEmpty() {
		return nil
	}

	subIndexSize, compressed, err := writeLineSubindex(s.f, s.codec, s.wb.positions)
	if err != nil {
		return err
	}
	contentLen, err := s.codec.streamCompressToFile(s.f, s.wb.contentBytes())
	if err != nil {
		return &CodecError{Filename: s.filename, Block: s.wb.blockIndex, Err: err}
	}

	desc := newBlockDescriptor(uint64(s.wb.fileOffset), uint64(contentLen), uint64(s.wb.decompressedLength()), compressed)
	s.block.appendBlock(desc, s.wb.firstLine)

	newOffset := s.wb.fileOffset + subIndexSize + contentLen
	s.nextOffset = newOffset
	s.wb.resetForNextBlock(s.wb.blockIndex+1, newOffset)
	return nil
}

// Close finalizes the store: for a writer it flushes any pending block,
// writes the index section, and rewrites the header with final values; for
// a reader it simply releases resources. Close is mandatory for a store
// opened with Create — without it the header is never rewritten and the
// file is unreadable.
func (s *Store) Close() error {
	if s.mode == modeClosed {
		return nil
	}
	defer func() {
		s.mode = modeClosed
		if s.codec != nil {
			s.codec.close()
		}
		if s.locked {
			unix.Flock(int(s.f.Fd()), unix.LOCK_UN)
		}
		s.f.Close()
	}()

	if s.mode != modeCreated {
		return nil
	}
	if s.poisoned != nil {
		return s.poisoned
	}

	if err := s.flush(); err != nil {
		return err
	}

	if pad := padding8(s.nextOffset); pad > 0 {
		if _, err := s.f.Write(make([]byte, pad)); err != nil {
			return &IOError{Filename: s.filename, Op: "pad to alignment", Err: err}
		}
		s.nextOffset += pad
	}

	indexOffset := s.nextOffset
	if _, err := writeIndexSection(s.f, s.codec, s.block, s.compressIndex); err != nil {
		return err
	}

	if err := writeHeader(s.f, fileHeader{
		indexOffset:   indexOffset,
		lineCount:     s.lineCount,
		blocks:        uint64(s.block.blockCount()),
		maxLineLength: s.maxLineLength,
		compressIndex: s.compressIndex,
	}); err != nil {
		return &IOError{Filename: s.filename, Op: "rewrite header", Err: err}
	}
	return nil
}
