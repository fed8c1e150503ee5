package tripwire

type entityKind uint8

const (
	unitEntity entityKind = iota
	groupEntity
	everythingEntity
)

// UnitGroup is anything that exposes a set of code units, such as a parsed
// script program. Discovery happens once, when the entity is resolved.
type UnitGroup interface {
	CodeUnits() []*CodeUnit
}

// Entity names what to instrument: a single code unit, a group of units, or
// everything the substrate executes. The set of variants is closed.
type Entity struct {
	kind  entityKind
	unit  *CodeUnit
	group UnitGroup
}

// Unit targets a single code unit.
func Unit(u *CodeUnit) Entity { return Entity{kind: unitEntity, unit: u} }

// Group targets every code unit a group exposes.
func Group(g UnitGroup) Entity { return Entity{kind: groupEntity, group: g} }

// Everything targets every code unit the substrate currently observes.
// Event delivery is still only enabled for units that actually receive a
// trigger point, so the cost of global instrumentation is paid only where
// handlers attach.
func Everything() Entity { return Entity{kind: everythingEntity} }

// resolveUnits expands the entity into concrete code units. Resolving to
// zero units is an immediate error, never deferred to first execution.
func (e Entity) resolveUnits(sub Substrate) ([]*CodeUnit, error) {
	var units []*CodeUnit
	switch e.kind {
	case unitEntity:
		if e.unit == nil {
			return nil, &ResolutionError{Target: "entity", Reason: "nil code unit"}
		}
		units = []*CodeUnit{e.unit}
	case groupEntity:
		if e.group == nil {
			return nil, &ResolutionError{Target: "entity", Reason: "nil unit group"}
		}
		units = e.group.CodeUnits()
	case everythingEntity:
		units = sub.Units()
	}
	if len(units) == 0 {
		return nil, &ResolutionError{Target: "entity", Reason: "resolves to no code units"}
	}
	return units, nil
}

// Trigger is a resolved set of trigger points plus an optional gating
// condition. It registers nothing by itself; attaching a callback produces
// a live handler.
type Trigger struct {
	engine *Engine
	units  []*CodeUnit
	points []TriggerPoint
	cond   *Condition
}

// TriggerOption configures When.
type TriggerOption func(*triggerConfig)

type triggerConfig struct {
	cond        *Condition
	fingerprint string
}

// If gates the trigger with a textual condition expression.
func If(src string) TriggerOption {
	return func(c *triggerConfig) { c.cond = CondExpr(src) }
}

// IfFunc gates the trigger with a predicate receiving the declared frame
// bindings by name.
func IfFunc(fn PredicateFunc, params ...string) TriggerOption {
	return func(c *triggerConfig) { c.cond = CondFunc(fn, params...) }
}

// WithCondition gates the trigger with a prebuilt condition.
func WithCondition(cond *Condition) TriggerOption {
	return func(c *triggerConfig) { c.cond = cond }
}

// VerifySource makes resolution fail with a StalenessError unless every
// resolved unit's current fingerprint equals fp. The check runs before any
// line resolution is attempted.
func VerifySource(fp string) TriggerOption {
	return func(c *triggerConfig) { c.fingerprint = fp }
}

// When resolves an entity and one or more identifiers into a trigger.
// Identifiers form a union: each contributes its own matches, and every
// resulting trigger point is bound to the same handler. All resolution and
// staleness errors surface here, synchronously.
func (e *Engine) When(entity Entity, idents []Identifier, opts ...TriggerOption) (*Trigger, error) {
	var cfg triggerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(idents) == 0 {
		return nil, &ResolutionError{Target: "trigger", Reason: "no identifiers given"}
	}

	units, err := entity.resolveUnits(e.substrate)
	if err != nil {
		return nil, err
	}

	if cfg.fingerprint != "" {
		for _, u := range units {
			if got := Fingerprint(u.Source()); got != cfg.fingerprint {
				return nil, &StalenessError{Unit: u.Name(), Want: cfg.fingerprint, Got: got}
			}
		}
	}

	seen := make(map[TriggerPoint]struct{})
	var points []TriggerPoint
	for _, u := range units {
		for _, id := range idents {
			pts, err := id.resolve(u, u.StartLine())
			if err != nil {
				return nil, err
			}
			for _, p := range pts {
				if _, dup := seen[p]; dup {
					continue
				}
				seen[p] = struct{}{}
				points = append(points, p)
			}
		}
	}

	if cfg.cond != nil {
		if err := cfg.cond.bind(units, points); err != nil {
			return nil, err
		}
	}

	return &Trigger{engine: e, units: units, points: points, cond: cfg.cond}, nil
}

// Points returns the trigger's resolved points.
func (t *Trigger) Points() []TriggerPoint {
	out := make([]TriggerPoint, len(t.points))
	copy(out, t.points)
	return out
}

// Attach binds one or more callbacks to the trigger, registers the
// resulting handler, and returns it. The callbacks run in the given order
// within a single firing. Validation is all-or-nothing: either every
// callback passes its registration-time checks and the handler goes live,
// or nothing registers.
func (t *Trigger) Attach(cbs ...*Callback) (*Handler, error) {
	if len(cbs) == 0 {
		return nil, &ResolutionError{Target: "handler", Reason: "no callbacks given"}
	}
	for _, cb := range cbs {
		if err := cb.validate(t.engine, t.units, t.points); err != nil {
			return nil, err
		}
	}
	return t.engine.register(t, cbs), nil
}

// Do attaches a single callback. Sugar for Attach.
func (t *Trigger) Do(cb *Callback) (*Handler, error) { return t.Attach(cb) }

// Break attaches a debugger-entry callback.
func (t *Trigger) Break() (*Handler, error) { return t.Attach(Break()) }

// Goto attaches a redirect callback.
func (t *Trigger) Goto(target any) (*Handler, error) { return t.Attach(Goto(target)) }
