// Package userscript builds immutable script descriptors from raw userscript
// source and decides which of them apply to a given URL.
package userscript

import (
	"github.com/yucer/userscript-proxy/urlmatch"
)

// RunAt controls when an injected script executes relative to the document
// lifecycle. It is selected once at construction time and never transitions.
type RunAt int

const (
	// RunAtEnd executes the script once the DOM has been parsed. It is the
	// default.
	RunAtEnd RunAt = iota
	// RunAtStart executes the script before the document starts rendering.
	RunAtStart
	// RunAtIdle defers execution until the document's load event has fired.
	RunAtIdle
)

// Directive values recognized by the run-at tag.
const (
	DocumentStart = "document-start"
	DocumentEnd   = "document-end"
	DocumentIdle  = "document-idle"
)

func parseRunAt(s string) (RunAt, bool) {
	switch s {
	case DocumentStart:
		return RunAtStart, true
	case DocumentEnd:
		return RunAtEnd, true
	case DocumentIdle:
		return RunAtIdle, true
	}
	return RunAtEnd, false
}

// Userscript is an immutable descriptor of one loaded script. It is built by
// Create and never mutated afterwards, which makes it safe for unsynchronized
// concurrent reads.
type Userscript struct {
	name            string
	version         string
	runAt           RunAt
	matchPatterns   []string
	includePatterns []string
	excludePatterns []string
	noframes        bool
	downloadURL     string
	content         string
}

func (s *Userscript) Name() string    { return s.name }
func (s *Userscript) Version() string { return s.version }
func (s *Userscript) RunAt() RunAt    { return s.runAt }
func (s *Userscript) Noframes() bool  { return s.noframes }

// DownloadURL returns the remote location of the script, or "" if the script
// can only be injected inline.
func (s *Userscript) DownloadURL() string { return s.downloadURL }
func (s *Userscript) Content() string     { return s.content }

// MatchPatterns returns the script's match patterns. The returned slice must
// not be modified.
func (s *Userscript) MatchPatterns() []string   { return s.matchPatterns }
func (s *Userscript) IncludePatterns() []string { return s.includePatterns }
func (s *Userscript) ExcludePatterns() []string { return s.excludePatterns }

// Unscoped reports whether the script declares no match or include patterns
// at all. Unscoped scripts are never applicable unless the operator opts in.
func (s *Userscript) Unscoped() bool {
	return len(s.matchPatterns) == 0 && len(s.includePatterns) == 0
}

// AppliesTo reports whether the script should be injected into the document
// at the given URL: at least one match/include pattern matches and no exclude
// pattern does.
func (s *Userscript) AppliesTo(url string) bool {
	matched := false
	for _, p := range s.matchPatterns {
		if urlmatch.Match(p, url) {
			matched = true
			break
		}
	}
	if !matched {
		for _, p := range s.includePatterns {
			if urlmatch.Match(p, url) {
				matched = true
				break
			}
		}
	}
	if !matched {
		return false
	}
	for _, p := range s.excludePatterns {
		if urlmatch.Match(p, url) {
			return false
		}
	}
	return true
}

// ApplicableChecker returns a predicate deciding, for the given request URL,
// whether a script applies to it.
func ApplicableChecker(url string) func(*Userscript) bool {
	return func(s *Userscript) bool {
		return s.AppliesTo(url)
	}
}
