// Package control parses and serializes RFC-822-style Debian control
// stanzas: the format shared by Packages indices, Release manifests, and
// the dpkg status file. A stanza is a sequence of "Field: value" lines,
// where a value may continue onto following lines that start with a
// space or a tab; stanzas are separated by one or more blank lines.
package control

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Stanza is an ordered set of fields. Field names are matched
// case-sensitively, as the Debian archive format requires (Package,
// Version, Architecture, Depends, …).
type Stanza struct {
	order  []string
	fields map[string]string
}

// Get returns the raw value of a field, and whether it was present.
func (s *Stanza) Get(name string) (string, bool) {
	if s == nil || s.fields == nil {
		return "", false
	}
	v, ok := s.fields[name]
	return v, ok
}

// Set assigns a field's value, appending it to the stanza's field order
// if it is new.
func (s *Stanza) Set(name, value string) {
	if s.fields == nil {
		s.fields = map[string]string{}
	}
	if _, exists := s.fields[name]; !exists {
		s.order = append(s.order, name)
	}
	s.fields[name] = value
}

// Fields returns the field names in the order they were parsed or set.
func (s *Stanza) Fields() []string {
	return append([]string(nil), s.order...)
}

// ParseError names the offending file and line, per the Metadata-Parse
// error kind in the error handling design.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// ParseStanzas reads zero or more blank-line-separated stanzas from r.
// file is used only to annotate errors.
func ParseStanzas(r io.Reader, file string) ([]*Stanza, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var stanzas []*Stanza
	var cur *Stanza
	var lastField string
	lineNo := 0

	flush := func() {
		if cur != nil && len(cur.fields) > 0 {
			stanzas = append(stanzas, cur)
		}
		cur = nil
		lastField = ""
	}

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}

		if line[0] == ' ' || line[0] == '\t' {
			if cur == nil || lastField == "" {
				return nil, &ParseError{File: file, Line: lineNo, Msg: "continuation line with no preceding field"}
			}
			cont := strings.TrimPrefix(line, " ")
			cont = strings.TrimPrefix(cont, "\t")
			if cont == "." {
				cont = ""
			}
			cur.fields[lastField] += "\n" + cont
			continue
		}

		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, &ParseError{File: file, Line: lineNo, Msg: fmt.Sprintf("malformed field line %q", line)}
		}
		name := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if name == "" {
			return nil, &ParseError{File: file, Line: lineNo, Msg: "empty field name"}
		}

		if cur == nil {
			cur = &Stanza{fields: map[string]string{}}
		}
		cur.Set(name, value)
		lastField = name
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{File: file, Line: lineNo, Msg: err.Error()}
	}
	flush()

	return stanzas, nil
}

// WriteStanza serializes a stanza back to control-file form, preserving
// field order and re-wrapping multi-line values with a leading space.
func WriteStanza(w io.Writer, s *Stanza) error {
	for _, name := range s.order {
		value := s.fields[name]
		lines := strings.Split(value, "\n")
		if _, err := fmt.Fprintf(w, "%s: %s\n", name, lines[0]); err != nil {
			return err
		}
		for _, cont := range lines[1:] {
			if cont == "" {
				cont = "."
			}
			if _, err := fmt.Fprintf(w, " %s\n", cont); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
