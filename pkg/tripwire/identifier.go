package tripwire

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// TriggerPoint is a resolved (code unit, concrete line-or-event) pair. Line
// is zero for start and return points.
type TriggerPoint struct {
	Unit *CodeUnit
	Kind EventKind
	Line int
}

func (p TriggerPoint) String() string {
	if p.Kind == LineEvent {
		return fmt.Sprintf("%s:%d", p.Unit.Name(), p.Line)
	}
	return fmt.Sprintf("%s:<%s>", p.Unit.Name(), p.Kind)
}

// Identifier is a location descriptor resolved against a code unit's line
// table. The set of variants is closed; construct values with Line, Offset,
// Text, Pattern, Start, Return, All, or Ident.
type Identifier interface {
	// resolve produces the matching trigger points. anchor is the line
	// relative offsets are resolved against: the unit's declaration line at
	// registration time, the currently executing line for redirect targets.
	resolve(u *CodeUnit, anchor int) ([]TriggerPoint, error)

	String() string
}

type lineIdent int

// Line matches one absolute line number, which must exist in the unit's
// line table.
func Line(n int) Identifier { return lineIdent(n) }

func (id lineIdent) String() string { return strconv.Itoa(int(id)) }

func (id lineIdent) resolve(u *CodeUnit, _ int) ([]TriggerPoint, error) {
	n := int(id)
	if !u.HasLine(n) {
		return nil, &ResolutionError{
			Target: id.String(),
			Reason: fmt.Sprintf("no line %d in %q (lines %d-%d)", n, u.Name(), u.StartLine(), u.StartLine()+len(u.Lines())-1),
		}
	}
	return []TriggerPoint{{Unit: u, Kind: LineEvent, Line: n}}, nil
}

type offsetIdent int

// Offset matches the line n lines after the anchor. At registration the
// anchor is the unit's declaration line; for redirect targets it is the
// currently executing line, and n may be negative.
func Offset(n int) Identifier { return offsetIdent(n) }

func (id offsetIdent) String() string { return fmt.Sprintf("%+d", int(id)) }

func (id offsetIdent) resolve(u *CodeUnit, anchor int) ([]TriggerPoint, error) {
	n := anchor + int(id)
	if !u.HasLine(n) {
		return nil, &ResolutionError{
			Target: id.String(),
			Reason: fmt.Sprintf("offset %+d from line %d leaves %q", int(id), anchor, u.Name()),
		}
	}
	return []TriggerPoint{{Unit: u, Kind: LineEvent, Line: n}}, nil
}

type textIdent string

// Text matches every line whose indentation-stripped text starts with the
// given literal string. Matching zero lines is a resolution error; matching
// several is not.
func Text(s string) Identifier { return textIdent(s) }

func (id textIdent) String() string { return strconv.Quote(string(id)) }

func (id textIdent) resolve(u *CodeUnit, _ int) ([]TriggerPoint, error) {
	var pts []TriggerPoint
	for _, line := range u.Lines() {
		if strings.HasPrefix(line.Text, string(id)) {
			pts = append(pts, TriggerPoint{Unit: u, Kind: LineEvent, Line: line.Number})
		}
	}
	if len(pts) == 0 {
		return nil, &ResolutionError{
			Target: id.String(),
			Reason: fmt.Sprintf("no line of %q matches", u.Name()),
		}
	}
	return pts, nil
}

type patternIdent struct{ re *regexp.Regexp }

// Pattern matches every line whose indentation-stripped text contains a
// match of the regular expression.
func Pattern(re *regexp.Regexp) Identifier { return patternIdent{re: re} }

func (id patternIdent) String() string { return fmt.Sprintf("/%s/", id.re) }

func (id patternIdent) resolve(u *CodeUnit, _ int) ([]TriggerPoint, error) {
	var pts []TriggerPoint
	for _, line := range u.Lines() {
		if id.re.MatchString(line.Text) {
			pts = append(pts, TriggerPoint{Unit: u, Kind: LineEvent, Line: line.Number})
		}
	}
	if len(pts) == 0 {
		return nil, &ResolutionError{
			Target: id.String(),
			Reason: fmt.Sprintf("no line of %q matches", u.Name()),
		}
	}
	return pts, nil
}

type eventIdent EventKind

// Start is the named lifecycle event fired when a unit begins execution,
// before its first statement.
var Start Identifier = eventIdent(StartEvent)

// Return is the named lifecycle event fired once per return from a unit,
// carrying the about-to-be-returned value.
var Return Identifier = eventIdent(ReturnEvent)

func (id eventIdent) String() string { return fmt.Sprintf("<%s>", EventKind(id)) }

func (id eventIdent) resolve(u *CodeUnit, _ int) ([]TriggerPoint, error) {
	return []TriggerPoint{{Unit: u, Kind: EventKind(id)}}, nil
}

type tupleIdent []Identifier

// All combines identifiers by intersection: a line qualifies only if it
// independently satisfies every component. Named events cannot be combined.
func All(ids ...Identifier) Identifier { return tupleIdent(ids) }

func (id tupleIdent) String() string {
	parts := make([]string, len(id))
	for i, sub := range id {
		parts[i] = sub.String()
	}
	return "(" + strings.Join(parts, " & ") + ")"
}

func (id tupleIdent) resolve(u *CodeUnit, anchor int) ([]TriggerPoint, error) {
	if len(id) == 0 {
		return nil, &ResolutionError{Target: id.String(), Reason: "empty combination"}
	}

	var agreed map[int]struct{}
	for _, sub := range id {
		if _, ok := sub.(eventIdent); ok {
			return nil, &ResolutionError{
				Target: id.String(),
				Reason: fmt.Sprintf("named event %s cannot be part of a combination", sub),
			}
		}
		pts, err := sub.resolve(u, anchor)
		if err != nil {
			return nil, err
		}
		lines := make(map[int]struct{}, len(pts))
		for _, p := range pts {
			lines[p.Line] = struct{}{}
		}
		if agreed == nil {
			agreed = lines
			continue
		}
		for n := range agreed {
			if _, ok := lines[n]; !ok {
				delete(agreed, n)
			}
		}
	}

	if len(agreed) == 0 {
		return nil, &ResolutionError{
			Target: id.String(),
			Reason: fmt.Sprintf("no line of %q satisfies every component", u.Name()),
		}
	}

	pts := make([]TriggerPoint, 0, len(agreed))
	for n := range agreed {
		pts = append(pts, TriggerPoint{Unit: u, Kind: LineEvent, Line: n})
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].Line < pts[j].Line })
	return pts, nil
}

// Ident converts the user-facing identifier syntax into an Identifier:
// integers are absolute line numbers, strings starting with "+" or "-"
// followed by digits are offsets, "<start>" and "<return>" are the named
// events, any other string is a prefix text match, and *regexp.Regexp is a
// pattern match. Identifier values pass through unchanged.
func Ident(v any) (Identifier, error) {
	switch t := v.(type) {
	case Identifier:
		return t, nil
	case int:
		return Line(t), nil
	case *regexp.Regexp:
		return Pattern(t), nil
	case string:
		switch t {
		case "<start>":
			return Start, nil
		case "<return>":
			return Return, nil
		}
		if len(t) > 1 && (t[0] == '+' || t[0] == '-') {
			if n, err := strconv.Atoi(t); err == nil {
				return Offset(n), nil
			}
		}
		return Text(t), nil
	default:
		return nil, &ResolutionError{
			Target: fmt.Sprintf("%v", v),
			Reason: fmt.Sprintf("unknown identifier type %T", v),
		}
	}
}

// MustIdent is Ident for statically known descriptors; it panics on error.
func MustIdent(v any) Identifier {
	id, err := Ident(v)
	if err != nil {
		panic(err)
	}
	return id
}
