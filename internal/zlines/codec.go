package zlines

import (
	"io"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/xerrors"
)

// algID is the compressor identifier written into the header's "alg" line.
// Files bearing any other identifier are rejected on open.
const algID = "fzstd"

// codec wraps a reusable zstd encoder/decoder pair, giving the rest of the
// package a compressed-size bound, one-shot compress/decompress (used for
// the line-subindex) and streaming compress-to-file / decompress-from-file
// (used for block content). Concurrency is pinned to 1: a Store is used by
// one goroutine at a time, so a background worker pool inside the codec
// would only add nondeterminism without buying throughput.
type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec() (*codec, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, xerrors.Errorf("zstd.NewWriter: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		return nil, xerrors.Errorf("zstd.NewReader: %w", err)
	}
	return &codec{enc: enc, dec: dec}, nil
}

func (c *codec) close() {
	c.enc.Close()
	c.dec.Close()
}

// maxCompressedSize returns an upper bound on the compressed size of n
// input bytes, wide enough to size a scratch buffer without a speculative
// compress pass. Mirrors the shape of ZSTD_compressBound from the
// reference zstd library (not exposed by the Go binding).
func maxCompressedSize(n int) int {
	bound := n + n>>8 + 64
	if n < 128<<10 {
		bound += (128<<10 - n) >> 11
	}
	return bound
}

// compressOneShot compresses src in a single call, used for the (typically
// small) per-block line-subindex. The returned slice aliases (or reuses
// the backing array of) dst.
func (c *codec) compressOneShot(dst, src []byte) (_ []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = xerrors.Errorf("compressOneShot: %v", r)
		}
	}()
	return c.enc.EncodeAll(src, dst[:0]), nil
}

// decompressOneShot decompresses src (produced by compressOneShot) in a
// single call, failing if the result would exceed maxSize bytes.
func (c *codec) decompressOneShot(dst, src []byte, maxSize int) ([]byte, error) {
	out, err := c.dec.DecodeAll(src, dst[:0])
	if err != nil {
		return nil, xerrors.Errorf("decompressOneShot: %w", err)
	}
	if len(out) > maxSize {
		return nil, xerrors.Errorf("decompressOneShot: decoded %d bytes, expected at most %d", len(out), maxSize)
	}
	return out, nil
}

// countingWriter tracks the number of bytes written through it, letting
// streamCompressToFile report compressed length without a second pass.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// streamCompressToFile initializes a fresh compressor stream (by resetting
// the reusable encoder), feeds the entire input through it, ends the
// stream, and returns the number of compressed bytes written to sink.
func (c *codec) streamCompressToFile(sink io.Writer, input []byte) (int64, error) {
	cw := &countingWriter{w: sink}
	c.enc.Reset(cw)
	if _, err := c.enc.Write(input); err != nil {
		return 0, xerrors.Errorf("streamCompressToFile: write: %w", err)
	}
	// Close ends the stream and flushes any buffered output; the encoder
	// is left usable again after the next Reset.
	if err := c.enc.Close(); err != nil {
		return 0, xerrors.Errorf("streamCompressToFile: close: %w", err)
	}
	return cw.n, nil
}

// streamDecompressFromFile initializes a fresh decompressor stream over
// exactly compressedLen bytes read from source, discards the first
// skipPrefix decompressed bytes, and writes the next len(output) decoded
// bytes into output. Any further decoded bytes are left undrained; the
// decoder is reset (not reused mid-stream) on the next call.
func (c *codec) streamDecompressFromFile(source io.Reader, compressedLen, skipPrefix int64, output []byte) (int, error) {
	lr := io.LimitReader(source, compressedLen)
	if err := c.dec.Reset(lr); err != nil {
		return 0, xerrors.Errorf("streamDecompressFromFile: reset: %w", err)
	}
	if skipPrefix > 0 {
		if _, err := io.CopyN(io.Discard, c.dec, skipPrefix); err != nil {
			return 0, xerrors.Errorf("streamDecompressFromFile: skip %d bytes: %w", skipPrefix, err)
		}
	}
	return readFullOrEOF(c.dec, output)
}

// readFullOrEOF reads until buf is full or the reader is exhausted,
// returning the number of bytes actually read with a nil error in the
// latter case (the caller only wants up to len(buf) bytes; a short final
// block is not an error).
func readFullOrEOF(r io.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			if err == io.EOF {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}
