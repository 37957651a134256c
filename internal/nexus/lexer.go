package nexus

import (
	"bufio"
	"io"
	"strings"
	"unicode"

	"golang.org/x/xerrors"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokSemicolon
	tokEOF
)

type token struct {
	kind tokenKind
	text string
}

// lexer tokenizes a NEXUS stream into whitespace- or semicolon-delimited
// words, a standalone semicolon token, and an EOF sentinel, discarding
// square-bracket comments (which may nest) along the way.
type lexer struct {
	r *bufio.Reader
}

func newLexer(r io.Reader) *lexer {
	return &lexer{r: bufio.NewReader(r)}
}

func (l *lexer) next() (token, error) {
	for {
		ch, _, err := l.r.ReadRune()
		if err != nil {
			if err == io.EOF {
				return token{kind: tokEOF}, nil
			}
			return token{}, xerrors.Errorf("nexus: read: %w", err)
		}
		switch {
		case unicode.IsSpace(ch):
			continue
		case ch == '[':
			if err := l.skipComment(); err != nil {
				return token{}, err
			}
			continue
		case ch == ';':
			return token{kind: tokSemicolon, text: ";"}, nil
		default:
			return l.readWord(ch)
		}
	}
}

// skipComment consumes a [possibly [nested]] comment; the opening '[' has
// already been consumed by the caller.
func (l *lexer) skipComment() error {
	depth := 1
	for depth > 0 {
		ch, _, err := l.r.ReadRune()
		if err != nil {
			return xerrors.Errorf("nexus: unterminated comment: %w", err)
		}
		switch ch {
		case '[':
			depth++
		case ']':
			depth--
		}
	}
	return nil
}

func (l *lexer) readWord(first rune) (token, error) {
	var b strings.Builder
	b.WriteRune(first)
	for {
		ch, _, err := l.r.ReadRune()
		if err != nil {
			if err == io.EOF {
				break
			}
			return token{}, xerrors.Errorf("nexus: read: %w", err)
		}
		if unicode.IsSpace(ch) || ch == ';' || ch == '[' {
			l.r.UnreadRune()
			break
		}
		b.WriteRune(ch)
	}
	return token{kind: tokWord, text: b.String()}, nil
}
