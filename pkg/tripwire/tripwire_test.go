package tripwire

import "fmt"

// fakeFrame is a minimal Frame for exercising dispatch without a real
// substrate.
type fakeFrame struct {
	locals     map[string]any
	line       int
	redirected int
	retval     any
	atReturn   bool
}

func newFakeFrame(line int) *fakeFrame {
	return &fakeFrame{locals: make(map[string]any), line: line, redirected: -1}
}

func (f *fakeFrame) Local(name string) (any, bool) {
	v, ok := f.locals[name]
	return v, ok
}

func (f *fakeFrame) SetLocal(name string, value any) {
	f.locals[name] = value
}

func (f *fakeFrame) LocalNames() []string {
	names := make([]string, 0, len(f.locals))
	for name := range f.locals {
		names = append(names, name)
	}
	return names
}

func (f *fakeFrame) Line() int { return f.line }

func (f *fakeFrame) Redirect(line int) error {
	f.redirected = line
	f.line = line
	return nil
}

func (f *fakeFrame) ReturnValue() (any, bool) {
	if !f.atReturn {
		return nil, false
	}
	return f.retval, true
}

// fakeSubstrate records watch traffic and lets tests push events by hand.
type fakeSubstrate struct {
	units   []*CodeUnit
	sinks   map[string]EventSink
	watched []string
	dropped []string
}

func newFakeSubstrate(units ...*CodeUnit) *fakeSubstrate {
	return &fakeSubstrate{units: units, sinks: make(map[string]EventSink)}
}

func (s *fakeSubstrate) Units() []*CodeUnit { return s.units }

func (s *fakeSubstrate) Watch(u *CodeUnit, sink EventSink) {
	s.sinks[u.Name()] = sink
	s.watched = append(s.watched, u.Name())
}

func (s *fakeSubstrate) Unwatch(u *CodeUnit) {
	delete(s.sinks, u.Name())
	s.dropped = append(s.dropped, u.Name())
}

// emit delivers an event the way the real substrate would: only if the unit
// is watched.
func (s *fakeSubstrate) emit(ev Event) error {
	sink, ok := s.sinks[ev.Unit.Name()]
	if !ok {
		return nil
	}
	return sink.Dispatch(ev)
}

// runnerSubstrate adds the snippet capability on top of fakeSubstrate.
type runnerSubstrate struct {
	*fakeSubstrate
	checkErr error
	ran      []string
}

func (s *runnerSubstrate) CheckSnippet(src string) error { return s.checkErr }

func (s *runnerSubstrate) RunSnippet(src string, f Frame) error {
	s.ran = append(s.ran, src)
	f.SetLocal("snippet_ran", true)
	return nil
}

// counterUnit builds a small unit used throughout the dispatch tests:
//
//	10  func counter(n)
//	11    x = 0
//	12    x = x + n
//	13    return x
func counterUnit() *CodeUnit {
	src := "func counter(n)\n  x = 0\n  x = x + n\n  return x\n"
	u := NewCodeUnit("counter", src, 10)
	u.DeclareBindings("n", "x")
	return u
}

// opaqueUnit has no declared bindings, standing in for substrates that
// cannot enumerate locals.
func opaqueUnit() *CodeUnit {
	return NewCodeUnit("opaque", "func opaque()\n  stuff\n", 30)
}

func lineEvent(u *CodeUnit, line int, f Frame) Event {
	return Event{Unit: u, Kind: LineEvent, Line: line, Frame: f}
}

func fmtPoints(pts []TriggerPoint) []string {
	out := make([]string, len(pts))
	for i, p := range pts {
		out[i] = fmt.Sprint(p)
	}
	return out
}
