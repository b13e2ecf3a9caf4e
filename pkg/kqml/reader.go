package kqml

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

var (
	// ErrUnbalanced is returned when input ends inside a list or string.
	ErrUnbalanced = errors.New("kqml: unbalanced expression")
	// ErrSyntax is returned for a complete but malformed expression. The
	// reader can continue with the next expression.
	ErrSyntax = errors.New("kqml: syntax error")
)

// Reader reads successive top-level KQML expressions from a stream.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Read returns the next expression. It returns io.EOF when the stream ends
// between expressions.
func (kr *Reader) Read() (Object, error) {
	if err := kr.skipSpace(); err != nil {
		return nil, err
	}
	return kr.readObject()
}

// ReadList reads the next expression and requires it to be a list.
func (kr *Reader) ReadList() (*List, error) {
	obj, err := kr.Read()
	if err != nil {
		return nil, err
	}
	l, ok := obj.(*List)
	if !ok {
		return nil, fmt.Errorf("%w: expected list, got %q", ErrSyntax, obj.String())
	}
	return l, nil
}

// Parse parses a single expression from s.
func Parse(s string) (Object, error) {
	kr := NewReader(strings.NewReader(s))
	obj, err := kr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("kqml: empty input")
	}
	return obj, err
}

// ParseList parses s and requires a list.
func ParseList(s string) (*List, error) {
	obj, err := Parse(s)
	if err != nil {
		return nil, err
	}
	l, ok := obj.(*List)
	if !ok {
		return nil, fmt.Errorf("%w: expected list, got %q", ErrSyntax, s)
	}
	return l, nil
}

func (kr *Reader) skipSpace() error {
	for {
		r, _, err := kr.r.ReadRune()
		if err != nil {
			return err
		}
		if r == ';' {
			if _, err := kr.r.ReadString('\n'); err != nil {
				return err
			}
			continue
		}
		if !unicode.IsSpace(r) {
			return kr.r.UnreadRune()
		}
	}
}

func (kr *Reader) readObject() (Object, error) {
	r, _, err := kr.r.ReadRune()
	if err != nil {
		return nil, err
	}
	switch r {
	case '(':
		return kr.readList()
	case ')':
		return nil, fmt.Errorf("%w: unexpected ')'", ErrSyntax)
	case '"':
		return kr.readQuoted()
	default:
		if err := kr.r.UnreadRune(); err != nil {
			return nil, err
		}
		return kr.readToken()
	}
}

func (kr *Reader) readList() (*List, error) {
	l := &List{}
	for {
		if err := kr.skipSpace(); err != nil {
			if err == io.EOF {
				return nil, ErrUnbalanced
			}
			return nil, err
		}
		r, _, err := kr.r.ReadRune()
		if err != nil {
			return nil, err
		}
		if r == ')' {
			return l, nil
		}
		if err := kr.r.UnreadRune(); err != nil {
			return nil, err
		}
		obj, err := kr.readObject()
		if err != nil {
			if err == io.EOF {
				return nil, ErrUnbalanced
			}
			return nil, err
		}
		l.Append(obj)
	}
}

func (kr *Reader) readQuoted() (Quoted, error) {
	var b strings.Builder
	for {
		r, _, err := kr.r.ReadRune()
		if err != nil {
			if err == io.EOF {
				return "", ErrUnbalanced
			}
			return "", err
		}
		switch r {
		case '\\':
			next, _, err := kr.r.ReadRune()
			if err != nil {
				return "", ErrUnbalanced
			}
			b.WriteRune(next)
		case '"':
			return Quoted(b.String()), nil
		default:
			b.WriteRune(r)
		}
	}
}

func (kr *Reader) readToken() (Token, error) {
	var b strings.Builder
	for {
		r, _, err := kr.r.ReadRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if unicode.IsSpace(r) || r == '(' || r == ')' || r == '"' {
			if err := kr.r.UnreadRune(); err != nil {
				return "", err
			}
			break
		}
		b.WriteRune(r)
	}
	return Token(b.String()), nil
}
