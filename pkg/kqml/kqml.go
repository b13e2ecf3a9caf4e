// Package kqml implements the subset of KQML used by the bioagents: the
// s-expression object model (tokens, quoted strings, lists) with keyword
// accessors, and a streaming reader for performatives.
package kqml

import (
	"strings"
)

// Object is any KQML value.
type Object interface {
	String() string
}

// Token is a bare KQML symbol such as SUCCESS or :reason.
type Token string

// String renders the token as-is.
func (t Token) String() string { return string(t) }

// Quoted is a double-quoted KQML string.
type Quoted string

// String renders the string with quotes and escapes.
func (q Quoted) String() string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range string(q) {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// List is a parenthesised KQML list. Performatives are lists whose head is
// the verb (request, reply, tell, ...).
type List struct {
	Data []Object
}

// NewList creates a list, optionally starting with a head token.
func NewList(head ...string) *List {
	l := &List{}
	for _, h := range head {
		l.Data = append(l.Data, Token(h))
	}
	return l
}

// NewPerformative creates a performative with the given verb.
func NewPerformative(verb string) *List {
	return NewList(verb)
}

// Head returns the first element as a string, or "" for an empty list or a
// list that starts with a nested list.
func (l *List) Head() string {
	if len(l.Data) == 0 {
		return ""
	}
	if t, ok := l.Data[0].(Token); ok {
		return string(t)
	}
	return ""
}

// Len returns the number of elements.
func (l *List) Len() int { return len(l.Data) }

// At returns element i.
func (l *List) At(i int) Object { return l.Data[i] }

// Append adds an element at the end.
func (l *List) Append(o Object) { l.Data = append(l.Data, o) }

// keywordIndex returns the index of the value following keyword, or -1.
// Keyword matching is case-insensitive and the leading colon is optional.
// The element after any keyword is a value and is never matched itself.
func (l *List) keywordIndex(keyword string) int {
	key := normalizeKeyword(keyword)
	for i := 0; i < len(l.Data)-1; i++ {
		t, ok := l.Data[i].(Token)
		if !ok || !strings.HasPrefix(string(t), ":") {
			continue
		}
		if strings.EqualFold(string(t), key) {
			return i + 1
		}
		i++
	}
	return -1
}

// Get returns the value stored under keyword, or nil.
func (l *List) Get(keyword string) Object {
	if i := l.keywordIndex(keyword); i >= 0 {
		return l.Data[i]
	}
	return nil
}

// GetList returns the list stored under keyword, or nil if absent or not a list.
func (l *List) GetList(keyword string) *List {
	if v, ok := l.Get(keyword).(*List); ok {
		return v
	}
	return nil
}

// Gets returns the value under keyword as a plain string: quoted strings are
// unquoted, tokens returned verbatim and lists rendered.
func (l *List) Gets(keyword string) string {
	return StringValue(l.Get(keyword))
}

// Set stores value under keyword, replacing an existing entry.
func (l *List) Set(keyword string, value Object) {
	if i := l.keywordIndex(keyword); i >= 0 {
		l.Data[i] = value
		return
	}
	l.Data = append(l.Data, Token(normalizeKeyword(keyword)), value)
}

// SetToken stores value as a bare token.
func (l *List) SetToken(keyword, value string) {
	l.Set(keyword, Token(value))
}

// Sets stores value as a quoted string.
func (l *List) Sets(keyword, value string) {
	l.Set(keyword, Quoted(value))
}

// String renders the list in KQML syntax.
func (l *List) String() string {
	parts := make([]string, len(l.Data))
	for i, o := range l.Data {
		if o == nil {
			parts[i] = "NIL"
			continue
		}
		parts[i] = o.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// StringValue converts any object to its plain string value.
func StringValue(o Object) string {
	switch v := o.(type) {
	case nil:
		return ""
	case Quoted:
		return string(v)
	case Token:
		return string(v)
	default:
		return v.String()
	}
}

func normalizeKeyword(keyword string) string {
	if strings.HasPrefix(keyword, ":") {
		return keyword
	}
	return ":" + keyword
}
