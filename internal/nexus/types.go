// Package nexus parses the NEXUS interchange format used for aligned
// character matrices (the common case being aligned genomic sequences),
// producing one named row per taxon. Each row's character data is meant to
// be handed to a zlines store as a single line, so an alignment round-trips
// through zlines with one line per taxon (see cmd/zlines/importnexus.go).
package nexus

// Sequence is one taxon's row from a NEXUS "matrix" block.
type Sequence struct {
	Taxon string
	Data  []byte
}
