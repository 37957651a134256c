package nexus

import (
	"strings"
	"testing"
)

const sampleDoc = `#NEXUS
[this is a comment [with a nested one] inside]
BEGIN TAXA;
  DIMENSIONS NTAX=4;
  TAXLABELS A B C D;
END;

BEGIN CHARACTERS;
  DIMENSIONS NCHAR=10;
  FORMAT DATATYPE=DNA MISSING=? GAP=-;
  MATRIX
  A ACGTACGTAC
  B ACGTACGTAG
  C ACGTTCGTAC
  D ACGTACGTAA
  ;
END;
`

func TestParseMatrix(t *testing.T) {
	seqs, err := ParseMatrix(strings.NewReader(sampleDoc))
	if err != nil {
		t.Fatalf("ParseMatrix: %v", err)
	}
	want := []Sequence{
		{Taxon: "A", Data: []byte("ACGTACGTAC")},
		{Taxon: "B", Data: []byte("ACGTACGTAG")},
		{Taxon: "C", Data: []byte("ACGTTCGTAC")},
		{Taxon: "D", Data: []byte("ACGTACGTAA")},
	}
	if len(seqs) != len(want) {
		t.Fatalf("got %d sequences, want %d", len(seqs), len(want))
	}
	for i, s := range seqs {
		if s.Taxon != want[i].Taxon || string(s.Data) != string(want[i].Data) {
			t.Errorf("sequence %d = %+v, want %+v", i, s, want[i])
		}
	}
}

func TestParseMatrixMissingHeader(t *testing.T) {
	_, err := ParseMatrix(strings.NewReader("BEGIN TAXA; END;"))
	if err == nil {
		t.Fatal("expected error for missing #NEXUS header")
	}
}

func TestParseMatrixNoMatrixStatement(t *testing.T) {
	_, err := ParseMatrix(strings.NewReader("#NEXUS\nBEGIN TAXA; DIMENSIONS NTAX=0; END;\n"))
	if err == nil {
		t.Fatal("expected error when no MATRIX statement is present")
	}
}

func TestParseMatrixUnterminated(t *testing.T) {
	_, err := ParseMatrix(strings.NewReader("#NEXUS\nMATRIX\nA ACGT\n"))
	if err == nil {
		t.Fatal("expected error for unterminated MATRIX statement")
	}
}
