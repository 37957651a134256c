package nexus

import (
	"io"
	"strings"

	"golang.org/x/xerrors"
)

// ParseMatrix reads a NEXUS document from r and returns the rows of its
// first MATRIX statement (the common case for an aligned character
// matrix). Any surrounding block structure (TAXA, CHARACTERS, DATA blocks
// and their commands) is recognized only insofar as it needs to be skipped:
// this is a recognizer for the MATRIX body, not a full NEXUS block-syntax
// parser.
func ParseMatrix(r io.Reader) ([]Sequence, error) {
	lx := newLexer(r)

	header, err := lx.next()
	if err != nil {
		return nil, err
	}
	if header.kind != tokWord || !strings.EqualFold(header.text, "#NEXUS") {
		return nil, xerrors.Errorf("nexus: missing #NEXUS header")
	}

	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		switch tok.kind {
		case tokEOF:
			return nil, xerrors.Errorf("nexus: no MATRIX statement found")
		case tokSemicolon:
			continue
		}

		if strings.EqualFold(tok.text, "MATRIX") {
			return parseMatrixBody(lx)
		}
		if err := skipCommand(lx); err != nil {
			return nil, err
		}
	}
}

// parseMatrixBody reads taxon/data pairs until the statement-terminating
// semicolon. It assumes a non-interleaved matrix: one contiguous data word
// per taxon, matching the row-per-taxon shape the import-nexus command in
// cmd/zlines expects on ingest (it feeds one Sequence.Data per AppendLine
// call).
func parseMatrixBody(lx *lexer) ([]Sequence, error) {
	var seqs []Sequence
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		switch tok.kind {
		case tokEOF:
			return nil, xerrors.Errorf("nexus: MATRIX statement not terminated with ';'")
		case tokSemicolon:
			return seqs, nil
		}

		taxon := tok.text
		data, err := lx.next()
		if err != nil {
			return nil, err
		}
		if data.kind != tokWord {
			return nil, xerrors.Errorf("nexus: expected sequence data for taxon %q", taxon)
		}
		seqs = append(seqs, Sequence{Taxon: taxon, Data: []byte(data.text)})
	}
}

// skipCommand discards tokens up to and including the next semicolon,
// for any NEXUS command this package has no specific handling for.
func skipCommand(lx *lexer) error {
	for {
		tok, err := lx.next()
		if err != nil {
			return err
		}
		switch tok.kind {
		case tokEOF:
			return xerrors.Errorf("nexus: command not terminated with ';'")
		case tokSemicolon:
			return nil
		}
	}
}
