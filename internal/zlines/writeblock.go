package zlines

import "bytes"

// errOverflow signals that the line being appended does not fit in the
// remaining content capacity of the current Write Block.
type errOverflow struct{}

func (errOverflow) Error() string { return "write block overflow" }

// writeBlock is the mutable staging buffer for the block currently being
// built: a growing content byte buffer plus a parallel, dynamically growing
// LinePosition vector for the lines it currently holds.
type writeBlock struct {
	blockIndex int
	fileOffset int64
	firstLine  uint64
	haveFirst  bool

	capacity  int
	content   bytes.Buffer
	positions []LinePosition

	// oversizeLine holds a line handed to the store directly (not copied
	// into content) because it alone exceeds capacity; see tryAppend.
	oversizeLine []byte
}

func newWriteBlock(capacity int) *writeBlock {
	wb := &writeBlock{capacity: capacity}
	wb.content.Grow(capacity)
	return wb
}

// isEmpty reports whether the block currently holds no lines at all. This
// must key off the position count, not content length: a block holding only
// empty lines has zero content bytes but is not empty.
func (wb *writeBlock) isEmpty() bool {
	return len(wb.positions) == 0
}

// tryAppend attempts to buffer line into the current block. It returns
// errOverflow if the line does not fit and the caller must flush first.
//
// Over-size line policy: a line that by itself exceeds capacity is never
// copied into content; it is instead recorded as the block's sole
// oversizeLine and handed to the codec directly on flush.
func (wb *writeBlock) tryAppend(storeLineCount uint64, line []byte) error {
	if len(line) > wb.capacity {
		if !wb.isEmpty() {
			return errOverflow{}
		}
		wb.oversizeLine = line
		wb.positions = append(wb.positions, LinePosition{OffsetInBlock: 0, Length: uint64(len(line))})
		wb.recordFirstLine(storeLineCount)
		return nil
	}

	if wb.oversizeLine != nil || wb.content.Len()+len(line) > wb.capacity {
		return errOverflow{}
	}

	offset := uint64(wb.content.Len())
	wb.content.Write(line) // bytes.Buffer.Write never errors
	wb.positions = append(wb.positions, LinePosition{OffsetInBlock: offset, Length: uint64(len(line))})
	wb.recordFirstLine(storeLineCount)
	return nil
}

func (wb *writeBlock) recordFirstLine(storeLineCount uint64) {
	if !wb.haveFirst {
		wb.firstLine = storeLineCount
		wb.haveFirst = true
	}
}

// decompressedLength is the total content size of the block: either the
// over-size line's own length, or the bytes buffered so far.
func (wb *writeBlock) decompressedLength() int {
	if wb.oversizeLine != nil {
		return len(wb.oversizeLine)
	}
	return wb.content.Len()
}

// contentBytes returns the bytes to hand the codec for this block.
func (wb *writeBlock) contentBytes() []byte {
	if wb.oversizeLine != nil {
		return wb.oversizeLine
	}
	return wb.content.Bytes()
}

// resetForNextBlock clears the block and prepares it to stage the block at
// newBlockIndex, starting at newFileOffset.
func (wb *writeBlock) resetForNextBlock(newBlockIndex int, newFileOffset int64) {
	wb.blockIndex = newBlockIndex
	wb.fileOffset = newFileOffset
	wb.haveFirst = false
	wb.content.Reset()
	wb.positions = wb.positions[:0]
	wb.oversizeLine = nil
}
