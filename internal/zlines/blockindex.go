package zlines

import "sort"

// linePositionDiskSize is the fixed on-disk size of one LinePosition record:
// two little-endian uint64 fields (offset_in_block, length).
const linePositionDiskSize = 16

// blockDescriptorDiskSize is the fixed on-disk size of one BlockDescriptor
// record: three little-endian uint64 fields.
const blockDescriptorDiskSize = 24

// compressedFlagBit marks, in BlockDescriptor.CompressedLengthAndFlag, that
// the block's line-subindex was stored compressed.
const compressedFlagBit = uint64(1) << 63

// LinePosition locates one line's bytes within its owning block's
// decompressed content.
type LinePosition struct {
	OffsetInBlock uint64
	Length        uint64
}

// BlockDescriptor describes one compressed block on disk. The
// subindex-compressed flag is folded into the top bit of
// CompressedLengthAndFlag; use compressedLen/hasCompressedSubindex to keep
// the bit trick confined to this file.
type BlockDescriptor struct {
	FileOffset             uint64
	CompressedLengthAndFlag uint64
	DecompressedLength      uint64
}

func newBlockDescriptor(fileOffset, compressedLen, decompressedLen uint64, subindexCompressed bool) BlockDescriptor {
	flag := compressedLen
	if subindexCompressed {
		flag |= compressedFlagBit
	}
	return BlockDescriptor{
		FileOffset:              fileOffset,
		CompressedLengthAndFlag: flag,
		DecompressedLength:      decompressedLen,
	}
}

// compressedLen returns the byte length of the block's compressed content,
// masking off the subindex-compressed flag bit.
func (d BlockDescriptor) compressedLen() uint64 {
	return d.CompressedLengthAndFlag &^ compressedFlagBit
}

// hasCompressedSubindex reports whether the block's line-subindex was
// stored in compressed form.
func (d BlockDescriptor) hasCompressedSubindex() bool {
	return d.CompressedLengthAndFlag&compressedFlagBit != 0
}

// blockIndex is the in-memory block index: a growing array of
// BlockDescriptors plus the parallel first-line table. Both arrays are
// owned exclusively by the Store that holds this blockIndex.
type blockIndex struct {
	blocks      []BlockDescriptor
	firstLineOf []uint64 // len == len(blocks)-1 once finalized; entry i is the first line of blocks[i+1]
}

func (bi *blockIndex) blockCount() int { return len(bi.blocks) }

// appendBlock records a freshly flushed block and the ordinal index of its
// first line (recorded in firstLineOf only for blocks after the first —
// block 0 always starts at line 0, so no entry is needed for it).
func (bi *blockIndex) appendBlock(desc BlockDescriptor, firstLine uint64) {
	if len(bi.blocks) > 0 {
		bi.firstLineOf = append(bi.firstLineOf, firstLine)
	}
	bi.blocks = append(bi.blocks, desc)
}

// locateBlock returns the index b of the block owning ordinal line L, such
// that firstLineOf[b-1] <= L < firstLineOf[b] (with block 0 always starting
// at line 0). Implemented as a binary search over firstLineOf.
func (bi *blockIndex) locateBlock(line uint64) int {
	// sort.Search finds the smallest i such that firstLineOf[i] > line;
	// that is the first block whose first line exceeds L, so L belongs to
	// block i (or block 0 if no such table exists).
	i := sort.Search(len(bi.firstLineOf), func(i int) bool {
		return bi.firstLineOf[i] > line
	})
	return i
}

// validate checks the block index's monotonicity invariants: strictly
// increasing file offsets, and a strictly increasing FirstLineTable with
// length len(blocks)-1 whose first entry is above 0 and whose last entry is
// below lineCount.
func (bi *blockIndex) validate(lineCount uint64) error {
	if len(bi.blocks) == 0 {
		if lineCount > 0 {
			return &FormatError{Detail: "line_count > 0 but the block index is empty"}
		}
		return nil
	}
	if len(bi.firstLineOf) != len(bi.blocks)-1 {
		return &FormatError{Detail: "first-line table length does not match block count"}
	}
	for i := 1; i < len(bi.blocks); i++ {
		if bi.blocks[i].FileOffset <= bi.blocks[i-1].FileOffset {
			return &FormatError{Detail: "block descriptors are not strictly increasing in file_offset"}
		}
	}
	var prev uint64
	for i, first := range bi.firstLineOf {
		if i == 0 {
			if first == 0 {
				return &FormatError{Detail: "first-line table entry 0 must be greater than 0"}
			}
		} else if first <= prev {
			return &FormatError{Detail: "first-line table is not strictly increasing"}
		}
		prev = first
	}
	if len(bi.firstLineOf) > 0 && bi.firstLineOf[len(bi.firstLineOf)-1] >= lineCount {
		return &FormatError{Detail: "last first-line table entry is not less than line_count"}
	}
	return nil
}
