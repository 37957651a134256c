package zlines

// readBlock is the cache of at most one currently-decompressed block. It
// mirrors writeBlock's shape plus the on-disk size of the line-subindex,
// which the reader needs to seek past to reach the compressed content.
//
// A block whose decompressed length exceeds the store's long-line threshold and
// which holds exactly one line is never materialized here: readBlock is
// populated with metadata only (content left empty) and the long-line path
// in store.go decompresses directly into the caller's buffer on demand.
type readBlock struct {
	blockIndex int // -1 when no block is loaded
	fileOffset int64
	firstLine  uint64
	lineCount  int

	lineSubindexBytesOnDisk int64

	content   []byte // full decompressed content, or empty when deferred
	positions []LinePosition

	deferred          bool // true for an over-size single-line block
	deferredLineLen   uint64
	deferredDataStart int64 // file offset of compressed content, past the subindex
	deferredCompLen   int64
}

func newReadBlock(capacity int) *readBlock {
	return &readBlock{
		blockIndex: -1,
		content:    make([]byte, 0, capacity),
	}
}

func (rb *readBlock) loaded(blockIdx int) bool {
	return rb.blockIndex == blockIdx
}
