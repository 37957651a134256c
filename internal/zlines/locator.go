package zlines

import "io"

// lineRef locates one line's bytes after a successful locate() call.
// Exactly one of content or the deferred* fields is meaningful, selected by
// deferred.
type lineRef struct {
	pos LinePosition

	// content holds the owning block's full decompressed bytes; pos indexes
	// into it. Valid when deferred is false.
	content []byte

	// deferred is true for a line living in an over-size single-line block
	// that was never materialized into the read block cache. dataStart/
	// compLen locate the compressed bytes on disk so the caller can
	// stream-decompress directly into its own buffer.
	deferred  bool
	dataStart int64
	compLen   int64
}

// locate resolves an ordinal line index, already known to be in range, to
// its owning bytes: the write block (if the store is still open for
// writing), the read block cache, or a fresh on-disk block load, loading a
// block from disk if necessary.
func (s *Store) locate(line uint64) (lineRef, error) {
	if s.mode == modeCreated && s.wb.haveFirst && line >= s.wb.firstLine {
		idx := int(line - s.wb.firstLine)
		if idx < len(s.wb.positions) {
			return lineRef{pos: s.wb.positions[idx], content: s.wb.contentBytes()}, nil
		}
	}

	b := s.block.locateBlock(line)
	if !s.rb.loaded(b) {
		if err := s.loadReadBlock(b); err != nil {
			return lineRef{}, err
		}
	}

	firstOfBlock := uint64(0)
	if b > 0 {
		firstOfBlock = s.block.firstLineOf[b-1]
	}
	idx := int(line - firstOfBlock)
	if idx < 0 || idx >= len(s.rb.positions) {
		return lineRef{}, &FormatError{Filename: s.filename, Detail: "line index does not fall within its located block"}
	}
	pos := s.rb.positions[idx]

	if s.rb.deferred {
		return lineRef{pos: pos, deferred: true, dataStart: s.rb.deferredDataStart, compLen: s.rb.deferredCompLen}, nil
	}
	return lineRef{pos: pos, content: s.rb.content}, nil
}

// loadReadBlock populates the read block cache with block b, read from
// disk. A block holding exactly one line whose decompressed length exceeds
// the store's long-line threshold is loaded as metadata only (deferred):
// its compressed bytes are never expanded into the cache.
func (s *Store) loadReadBlock(b int) error {
	desc := s.block.blocks[b]

	firstOfBlock := uint64(0)
	if b > 0 {
		firstOfBlock = s.block.firstLineOf[b-1]
	}
	nextFirst := s.lineCount
	if b < len(s.block.blocks)-1 {
		nextFirst = s.block.firstLineOf[b]
	}
	lineCountInBlock := int(nextFirst - firstOfBlock)

	if _, err := s.f.Seek(int64(desc.FileOffset), io.SeekStart); err != nil {
		return &IOError{Filename: s.filename, Op: "seek to block", Err: err}
	}
	positions, subIndexSize, err := readLineSubindex(s.f, s.codec, lineCountInBlock, desc.hasCompressedSubindex())
	if err != nil {
		return err
	}
	dataStart := int64(desc.FileOffset) + subIndexSize
	compLen := int64(desc.compressedLen())

	if lineCountInBlock == 1 && int(desc.DecompressedLength) > s.longLineThreshold {
		s.rb.blockIndex = b
		s.rb.fileOffset = int64(desc.FileOffset)
		s.rb.firstLine = firstOfBlock
		s.rb.lineCount = lineCountInBlock
		s.rb.lineSubindexBytesOnDisk = subIndexSize
		s.rb.positions = positions
		s.rb.content = s.rb.content[:0]
		s.rb.deferred = true
		s.rb.deferredLineLen = desc.DecompressedLength
		s.rb.deferredDataStart = dataStart
		s.rb.deferredCompLen = compLen
		return nil
	}

	if _, err := s.f.Seek(dataStart, io.SeekStart); err != nil {
		return &IOError{Filename: s.filename, Op: "seek to block content", Err: err}
	}
	if cap(s.rb.content) < int(desc.DecompressedLength) {
		s.rb.content = make([]byte, desc.DecompressedLength)
	} else {
		s.rb.content = s.rb.content[:desc.DecompressedLength]
	}
	n, err := s.codec.streamDecompressFromFile(s.f, compLen, 0, s.rb.content)
	if err != nil {
		return &CodecError{Filename: s.filename, Block: b, Err: err}
	}
	if uint64(n) != desc.DecompressedLength {
		return &FormatError{Filename: s.filename, Detail: "block decompressed to an unexpected size"}
	}

	s.rb.blockIndex = b
	s.rb.fileOffset = int64(desc.FileOffset)
	s.rb.firstLine = firstOfBlock
	s.rb.lineCount = lineCountInBlock
	s.rb.lineSubindexBytesOnDisk = subIndexSize
	s.rb.positions = positions
	s.rb.deferred = false
	return nil
}
