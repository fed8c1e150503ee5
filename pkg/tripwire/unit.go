package tripwire

import (
	"sort"
	"strings"
	"sync"
)

// SourceLine is one entry of a code unit's line table. Text holds the
// indentation-stripped source text of the line.
type SourceLine struct {
	Number int
	Text   string
}

// CodeUnit is one addressable piece of source: a routine or method exposed
// by the instrumentation substrate. The line table and fingerprint are
// computed once at construction and are read-only afterwards, so a unit may
// be shared across goroutines without locking.
type CodeUnit struct {
	name        string
	source      string
	startLine   int
	lines       []SourceLine
	lineSet     map[int]struct{}
	fingerprint string

	bindingMu sync.Mutex
	bindings  []string
}

// NewCodeUnit builds a code unit from raw source text. startLine is the
// absolute line number of the unit's first line (its declaration); the line
// table covers every physical line of source, numbered from startLine.
func NewCodeUnit(name, source string, startLine int) *CodeUnit {
	raw := strings.Split(strings.TrimRight(source, "\n"), "\n")
	lines := make([]SourceLine, 0, len(raw))
	set := make(map[int]struct{}, len(raw))
	for i, text := range raw {
		n := startLine + i
		lines = append(lines, SourceLine{Number: n, Text: strings.TrimSpace(text)})
		set[n] = struct{}{}
	}

	return &CodeUnit{
		name:        name,
		source:      source,
		startLine:   startLine,
		lines:       lines,
		lineSet:     set,
		fingerprint: Fingerprint(source),
	}
}

// Name returns the unit's stable identity within its substrate.
func (u *CodeUnit) Name() string { return u.name }

// Source returns the unit's raw source text.
func (u *CodeUnit) Source() string { return u.source }

// StartLine returns the absolute line number of the unit's declaration.
func (u *CodeUnit) StartLine() int { return u.startLine }

// Fingerprint returns the digest computed from the unit's source text at
// construction time.
func (u *CodeUnit) Fingerprint() string { return u.fingerprint }

// Lines returns the unit's ordered line table.
func (u *CodeUnit) Lines() []SourceLine { return u.lines }

// HasLine reports whether the given absolute line number exists in the
// unit's line table.
func (u *CodeUnit) HasLine(n int) bool {
	_, ok := u.lineSet[n]
	return ok
}

// LineText returns the indentation-stripped text of the given line.
func (u *CodeUnit) LineText(n int) (string, bool) {
	if !u.HasLine(n) {
		return "", false
	}
	return u.lines[n-u.startLine].Text, true
}

// DeclareBindings records the names the substrate knows to be visible inside
// the unit (parameters and assigned variables). When declared, conditions
// and predicates are validated against this set at registration time.
// Substrates that cannot enumerate bindings simply never call it.
func (u *CodeUnit) DeclareBindings(names ...string) {
	u.bindingMu.Lock()
	defer u.bindingMu.Unlock()
	for _, name := range names {
		if !containsString(u.bindings, name) {
			u.bindings = append(u.bindings, name)
		}
	}
	sort.Strings(u.bindings)
}

// Bindings returns the declared binding names, or nil when the substrate
// did not declare any.
func (u *CodeUnit) Bindings() []string {
	u.bindingMu.Lock()
	defer u.bindingMu.Unlock()
	if u.bindings == nil {
		return nil
	}
	out := make([]string, len(u.bindings))
	copy(out, u.bindings)
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
