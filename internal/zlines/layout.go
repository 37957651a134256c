package zlines

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// headerSize is the fixed size of the zlines header region.
const headerSize = 256

// dataSectionOffset is always 256: the header occupies exactly one region
// and the data section begins immediately after it.
const dataSectionOffset = 256

const formatVersionLine = "zline v2.0"

// fileHeader holds the parsed contents of the 256-byte header region.
type fileHeader struct {
	indexOffset   int64
	lineCount     uint64
	blocks        uint64
	maxLineLength uint64
	compressIndex bool
}

// writeHeader serializes h into exactly headerSize ASCII bytes, newline
// terminated, blank-line delimited, space padded, and writes it at offset 0
// of w.
func writeHeader(w io.WriterAt, h fileHeader) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n", formatVersionLine)
	fmt.Fprintf(&buf, "data_offset %d\n", dataSectionOffset)
	fmt.Fprintf(&buf, "index_offset %d\n", h.indexOffset)
	fmt.Fprintf(&buf, "lines %d\n", h.lineCount)
	fmt.Fprintf(&buf, "blocks %d\n", h.blocks)
	fmt.Fprintf(&buf, "maxlen %d\n", h.maxLineLength)
	fmt.Fprintf(&buf, "alg %s\n", algID)
	if h.compressIndex {
		fmt.Fprintf(&buf, "zi\n")
	}
	fmt.Fprintf(&buf, "\n")

	if buf.Len() > headerSize-1 {
		return xerrors.Errorf("writeHeader: header content %d bytes exceeds %d-byte budget", buf.Len(), headerSize-1)
	}
	pad := headerSize - buf.Len() - 1
	buf.WriteString(strings.Repeat(" ", pad))
	buf.WriteByte('\n')

	if _, err := w.WriteAt(buf.Bytes(), 0); err != nil {
		return xerrors.Errorf("writeHeader: %w", err)
	}
	return nil
}

// readHeader parses the 256-byte header region from r.
func readHeader(r io.Reader) (fileHeader, error) {
	lr := io.LimitReader(r, headerSize)
	sc := bufio.NewScanner(lr)
	sc.Buffer(make([]byte, headerSize), headerSize)

	if !sc.Scan() {
		return fileHeader{}, &FormatError{Detail: "empty or truncated header"}
	}
	if sc.Text() != formatVersionLine {
		return fileHeader{}, &FormatError{Detail: fmt.Sprintf("unrecognized format version %q", sc.Text())}
	}

	var h fileHeader
	sawDataOffset, sawAlg := false, false
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			break // blank line ends the header
		}
		key, val, _ := strings.Cut(line, " ")
		switch key {
		case "data_offset":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil || n != dataSectionOffset {
				return fileHeader{}, &FormatError{Detail: "invalid data_offset"}
			}
			sawDataOffset = true
		case "index_offset":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return fileHeader{}, &FormatError{Detail: "invalid index_offset"}
			}
			h.indexOffset = n
		case "lines":
			n, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return fileHeader{}, &FormatError{Detail: "invalid lines"}
			}
			h.lineCount = n
		case "blocks":
			n, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return fileHeader{}, &FormatError{Detail: "invalid blocks"}
			}
			h.blocks = n
		case "maxlen":
			n, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return fileHeader{}, &FormatError{Detail: "invalid maxlen"}
			}
			h.maxLineLength = n
		case "alg":
			if val != algID {
				return fileHeader{}, &FormatError{Detail: fmt.Sprintf("unknown compression algorithm %q", val)}
			}
			sawAlg = true
		case "zi":
			h.compressIndex = true
		default:
			return fileHeader{}, &FormatError{Detail: fmt.Sprintf("unknown header field %q", key)}
		}
	}
	if err := sc.Err(); err != nil {
		return fileHeader{}, xerrors.Errorf("readHeader: %w", err)
	}
	if !sawDataOffset || !sawAlg {
		return fileHeader{}, &FormatError{Detail: "incomplete header"}
	}
	return h, nil
}

// padding8 returns the number of zero bytes needed to bring offset up to
// the next 8-byte boundary.
func padding8(offset int64) int64 {
	return (8 - offset%8) % 8
}

// writeLineSubindex writes the line-subindex for one block: the raw
// 16-byte-per-line form, or an 8-byte length prefix followed by a
// one-shot-compressed form, whichever is strictly smaller. It returns the
// number of bytes written and whether the compressed form was used.
func writeLineSubindex(w io.Writer, c *codec, positions []LinePosition) (onDiskSize int64, compressed bool, err error) {
	var raw bytes.Buffer
	raw.Grow(len(positions) * linePositionDiskSize)
	if err := binary.Write(&raw, binary.LittleEndian, positions); err != nil {
		return 0, false, xerrors.Errorf("writeLineSubindex: encode raw: %w", err)
	}

	comp, err := c.compressOneShot(nil, raw.Bytes())
	if err != nil {
		return 0, false, &CodecError{Block: -1, Err: err}
	}

	if len(comp) < raw.Len() {
		var lenBuf [8]byte
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(comp)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return 0, false, xerrors.Errorf("writeLineSubindex: %w", err)
		}
		if _, err := w.Write(comp); err != nil {
			return 0, false, xerrors.Errorf("writeLineSubindex: %w", err)
		}
		return int64(8 + len(comp)), true, nil
	}

	if _, err := w.Write(raw.Bytes()); err != nil {
		return 0, false, xerrors.Errorf("writeLineSubindex: %w", err)
	}
	return int64(raw.Len()), false, nil
}

// readLineSubindex reads the line-subindex for a block of lineCount lines,
// starting at the current position of r, returning the decoded positions
// and the number of on-disk bytes consumed.
func readLineSubindex(r io.Reader, c *codec, lineCount int, compressed bool) ([]LinePosition, int64, error) {
	rawSize := lineCount * linePositionDiskSize
	if !compressed {
		buf := make([]byte, rawSize)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, 0, xerrors.Errorf("readLineSubindex: %w", err)
		}
		return decodeLinePositions(buf, lineCount), int64(rawSize), nil
	}

	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, 0, xerrors.Errorf("readLineSubindex: length prefix: %w", err)
	}
	compLen := binary.LittleEndian.Uint64(lenBuf[:])
	comp := make([]byte, compLen)
	if _, err := io.ReadFull(r, comp); err != nil {
		return nil, 0, xerrors.Errorf("readLineSubindex: %w", err)
	}
	raw, err := c.decompressOneShot(nil, comp, rawSize)
	if err != nil {
		return nil, 0, &CodecError{Block: -1, Err: err}
	}
	if len(raw) != rawSize {
		return nil, 0, &FormatError{Detail: "decompressed line-subindex size mismatch"}
	}
	return decodeLinePositions(raw, lineCount), int64(8 + len(comp)), nil
}

func decodeLinePositions(buf []byte, n int) []LinePosition {
	positions := make([]LinePosition, n)
	for i := range positions {
		off := i * linePositionDiskSize
		positions[i] = LinePosition{
			OffsetInBlock: binary.LittleEndian.Uint64(buf[off:]),
			Length:        binary.LittleEndian.Uint64(buf[off+8:]),
		}
	}
	return positions
}

// writeIndexSection serializes the block descriptor array and the
// first-line table, optionally one-shot-compressing both, and returns the
// total number of bytes written.
func writeIndexSection(w io.Writer, c *codec, bi *blockIndex, compress bool) (int64, error) {
	var descBuf, firstBuf bytes.Buffer
	if err := binary.Write(&descBuf, binary.LittleEndian, bi.blocks); err != nil {
		return 0, xerrors.Errorf("writeIndexSection: encode blocks: %w", err)
	}
	if err := binary.Write(&firstBuf, binary.LittleEndian, bi.firstLineOf); err != nil {
		return 0, xerrors.Errorf("writeIndexSection: encode first-line table: %w", err)
	}

	if !compress {
		n1, err := w.Write(descBuf.Bytes())
		if err != nil {
			return 0, xerrors.Errorf("writeIndexSection: %w", err)
		}
		n2, err := w.Write(firstBuf.Bytes())
		if err != nil {
			return 0, xerrors.Errorf("writeIndexSection: %w", err)
		}
		return int64(n1 + n2), nil
	}

	compDesc, err := c.compressOneShot(nil, descBuf.Bytes())
	if err != nil {
		return 0, &CodecError{Block: -1, Err: err}
	}
	compFirst, err := c.compressOneShot(nil, firstBuf.Bytes())
	if err != nil {
		return 0, &CodecError{Block: -1, Err: err}
	}

	var sizes [16]byte
	binary.LittleEndian.PutUint64(sizes[0:], uint64(len(compDesc)))
	binary.LittleEndian.PutUint64(sizes[8:], uint64(len(compFirst)))
	total := 0
	n, err := w.Write(sizes[:])
	if err != nil {
		return 0, xerrors.Errorf("writeIndexSection: %w", err)
	}
	total += n
	n, err = w.Write(compDesc)
	if err != nil {
		return 0, xerrors.Errorf("writeIndexSection: %w", err)
	}
	total += n
	n, err = w.Write(compFirst)
	if err != nil {
		return 0, xerrors.Errorf("writeIndexSection: %w", err)
	}
	total += n
	return int64(total), nil
}

// readIndexSection reads and decodes the block descriptor array and
// first-line table given the block count from the header.
func readIndexSection(r io.Reader, c *codec, blockCount uint64, compress bool) (*blockIndex, error) {
	descCount := int(blockCount)
	firstCount := 0
	if descCount > 0 {
		firstCount = descCount - 1
	}
	descRawSize := descCount * blockDescriptorDiskSize
	firstRawSize := firstCount * 8

	var descBytes, firstBytes []byte
	if !compress {
		descBytes = make([]byte, descRawSize)
		if _, err := io.ReadFull(r, descBytes); err != nil {
			return nil, xerrors.Errorf("readIndexSection: %w", err)
		}
		firstBytes = make([]byte, firstRawSize)
		if _, err := io.ReadFull(r, firstBytes); err != nil {
			return nil, xerrors.Errorf("readIndexSection: %w", err)
		}
	} else {
		var sizes [16]byte
		if _, err := io.ReadFull(r, sizes[:]); err != nil {
			return nil, xerrors.Errorf("readIndexSection: sizes: %w", err)
		}
		descCompLen := binary.LittleEndian.Uint64(sizes[0:])
		firstCompLen := binary.LittleEndian.Uint64(sizes[8:])

		descComp := make([]byte, descCompLen)
		if _, err := io.ReadFull(r, descComp); err != nil {
			return nil, xerrors.Errorf("readIndexSection: %w", err)
		}
		var err error
		descBytes, err = c.decompressOneShot(nil, descComp, descRawSize)
		if err != nil {
			return nil, &CodecError{Block: -1, Err: err}
		}

		firstComp := make([]byte, firstCompLen)
		if _, err := io.ReadFull(r, firstComp); err != nil {
			return nil, xerrors.Errorf("readIndexSection: %w", err)
		}
		firstBytes, err = c.decompressOneShot(nil, firstComp, firstRawSize)
		if err != nil {
			return nil, &CodecError{Block: -1, Err: err}
		}
	}

	if len(descBytes) != descRawSize || len(firstBytes) != firstRawSize {
		return nil, &FormatError{Detail: "index section size mismatch"}
	}

	bi := &blockIndex{
		blocks:      make([]BlockDescriptor, descCount),
		firstLineOf: make([]uint64, firstCount),
	}
	for i := 0; i < descCount; i++ {
		off := i * blockDescriptorDiskSize
		bi.blocks[i] = BlockDescriptor{
			FileOffset:              binary.LittleEndian.Uint64(descBytes[off:]),
			CompressedLengthAndFlag: binary.LittleEndian.Uint64(descBytes[off+8:]),
			DecompressedLength:      binary.LittleEndian.Uint64(descBytes[off+16:]),
		}
	}
	for i := 0; i < firstCount; i++ {
		bi.firstLineOf[i] = binary.LittleEndian.Uint64(firstBytes[i*8:])
	}
	return bi, nil
}
