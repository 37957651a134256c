package pipeline

import (
	"encoding/binary"
	"io"

	"github.com/google/renameio"
	"github.com/klauspost/pgzip"
	"github.com/orcaman/writerseeker"
	"golang.org/x/xerrors"
)

// writeManifestEntry writes one shard's on-disk record within the combined
// manifest: a length-prefixed name, a length-prefixed output path, and two
// LE uint64 counters.
func writeManifestEntry(w io.Writer, r ShardResult) error {
	if err := writeLenPrefixed(w, r.Name); err != nil {
		return err
	}
	if err := writeLenPrefixed(w, r.Path); err != nil {
		return err
	}
	var counts [16]byte
	binary.LittleEndian.PutUint64(counts[0:], r.Lines)
	binary.LittleEndian.PutUint64(counts[8:], r.Bytes)
	_, err := w.Write(counts[:])
	return err
}

func writeLenPrefixed(w io.Writer, s string) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

// buildAndArchiveManifest drains resultsCh as shard results arrive, appending
// each to an in-memory manifest buffer, then patches the leading entry-count
// header once the channel closes and archives the whole thing to path via
// pgzip, writing it atomically through renameio.
//
// Grounded on cmd/distri/initrd.go's renameio.TempFile + pgzip.NewWriter
// pairing: the original writes its initrd image the same way. The leading
// count header can only be known once every worker has reported in, which
// is why the buffer needs to be seekable rather than a plain io.Writer.
func buildAndArchiveManifest(resultsCh <-chan ShardResult, path string) error {
	var ws writerseeker.WriterSeeker

	var countBuf [8]byte
	if _, err := ws.Write(countBuf[:]); err != nil {
		return xerrors.Errorf("buildAndArchiveManifest: reserve count header: %w", err)
	}

	var n uint64
	for res := range resultsCh {
		if err := writeManifestEntry(&ws, res); err != nil {
			return xerrors.Errorf("buildAndArchiveManifest: write entry for shard %s: %w", res.Name, err)
		}
		n++
	}

	if _, err := ws.Seek(0, io.SeekStart); err != nil {
		return xerrors.Errorf("buildAndArchiveManifest: seek to patch count: %w", err)
	}
	binary.LittleEndian.PutUint64(countBuf[:], n)
	if _, err := ws.Write(countBuf[:]); err != nil {
		return xerrors.Errorf("buildAndArchiveManifest: patch count: %w", err)
	}

	body, err := ws.Reader()
	if err != nil {
		return xerrors.Errorf("buildAndArchiveManifest: %w", err)
	}

	out, err := renameio.TempFile("", path)
	if err != nil {
		return xerrors.Errorf("buildAndArchiveManifest: %w", err)
	}
	defer out.Cleanup()

	zw := pgzip.NewWriter(out)
	if _, err := io.Copy(zw, body); err != nil {
		return xerrors.Errorf("buildAndArchiveManifest: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return xerrors.Errorf("buildAndArchiveManifest: %w", err)
	}
	if err := out.CloseAtomicallyReplace(); err != nil {
		return xerrors.Errorf("buildAndArchiveManifest: %w", err)
	}
	return nil
}
