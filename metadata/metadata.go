// Package metadata implements the userscript metadata block grammar: locating
// the delimited block inside script source text, parsing its directives, and
// validating them against a tag schema.
package metadata

import (
	"regexp"
	"strings"
)

const (
	commentPrefix = "//"
	tagPrefix     = "@"
	blockStart    = "==UserScript=="
	blockEnd      = "==/UserScript=="
)

var (
	// blockRegex captures everything between the start and end marker lines.
	blockRegex = regexp.MustCompile(`(?s)` + commentPrefix + `[ \t]*` + blockStart + `\n(.*)` + commentPrefix + `[ \t]*` + blockEnd)
	// tagLineRegex matches a single directive line: comment prefix, tag
	// prefix, tag name, then an optional value running to the end of the line.
	tagLineRegex    = regexp.MustCompile(`^\s*` + commentPrefix + `\s*` + tagPrefix + `(\S+)(?:\s+(\S.*)?)?$`)
	whitespaceRegex = regexp.MustCompile(`^\s*$`)
	commentRegex    = regexp.MustCompile(`^\s*` + commentPrefix)
)

// Item is a single metadata directive. A directive that appears without an
// explicit value is a boolean directive; it carries Bool == true and an empty
// Value.
type Item struct {
	Name  string
	Value string
	Bool  bool
}

// Metadata is an ordered sequence of directives. Duplicates are permitted
// until validation; order is insertion order from the source text.
type Metadata []Item

// All returns every value recorded for the named tag, in order.
func (md Metadata) All(name string) []Item {
	var items []Item
	for _, it := range md {
		if it.Name == name {
			items = append(items, it)
		}
	}
	return items
}

// First returns the first item recorded for the named tag.
func (md Metadata) First(name string) (Item, bool) {
	for _, it := range md {
		if it.Name == name {
			return it, true
		}
	}
	return Item{}, false
}

// Has reports whether the named tag is present.
func (md Metadata) Has(name string) bool {
	_, ok := md.First(name)
	return ok
}

// Extract locates the metadata block in userscript source text and returns
// its raw content, excluding the marker lines.
//
// Every line inside the block must be whitespace-only, a plain comment, or a
// well-formed tag line. It returns a MissingBlockError if no block exists and
// an InvalidLineError for the first line violating the grammar.
func Extract(source string) (string, error) {
	m := blockRegex.FindStringSubmatch(source)
	if m == nil {
		return "", MissingBlockError{}
	}
	block := m[1]
	for _, line := range strings.Split(block, "\n") {
		if whitespaceRegex.MatchString(line) || tagLineRegex.MatchString(line) || commentRegex.MatchString(line) {
			continue
		}
		return "", InvalidLineError{Line: line}
	}
	return block, nil
}

// Parse scans block content line by line and returns the directives it
// contains. Lines that do not match the tag line grammar are skipped; Extract
// has already rejected anything other than comments and whitespace, so
// nothing meaningful is lost when both run in sequence.
func Parse(block string) Metadata {
	var md Metadata
	for _, line := range strings.Split(block, "\n") {
		m := tagLineRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name, value := m[1], m[2]
		if value == "" {
			// Boolean directives have no explicit value; presence means true.
			md = append(md, Item{Name: name, Bool: true})
		} else {
			md = append(md, Item{Name: name, Value: value})
		}
	}
	return md
}
