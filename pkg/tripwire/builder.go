package tripwire

import "fmt"

// Builder accumulates a trigger and a chain of callbacks without
// registering anything. Apply commits the accumulated state into exactly
// one live handler; discarding the builder without Apply has no observable
// effect. Staging errors (a bad identifier, say) are remembered and
// surfaced by Apply.
type Builder struct {
	engine    *Engine
	entity    Entity
	hasEntity bool
	idents    []Identifier
	opts      []TriggerOption
	callbacks []*Callback
	err       error
}

// Instrument starts a builder. The entity may be supplied here or later
// via On.
func (e *Engine) Instrument(entity ...Entity) *Builder {
	b := &Builder{engine: e}
	if len(entity) > 0 {
		b.entity = entity[0]
		b.hasEntity = true
	}
	return b
}

// On sets (or replaces) the entity to instrument.
func (b *Builder) On(entity Entity) *Builder {
	b.entity = entity
	b.hasEntity = true
	return b
}

// At adds trigger identifiers using the Ident syntax. Repeated calls form
// a union.
func (b *Builder) At(idents ...any) *Builder {
	for _, v := range idents {
		id, err := Ident(v)
		if err != nil {
			b.stageErr(err)
			continue
		}
		b.idents = append(b.idents, id)
	}
	return b
}

// WhenCalled triggers at unit entry.
func (b *Builder) WhenCalled() *Builder {
	b.idents = append(b.idents, Start)
	return b
}

// WhenReturned triggers at every return from the unit.
func (b *Builder) WhenReturned() *Builder {
	b.idents = append(b.idents, Return)
	return b
}

// If gates the handler with a textual condition.
func (b *Builder) If(src string) *Builder {
	b.opts = append(b.opts, If(src))
	return b
}

// IfFunc gates the handler with a predicate.
func (b *Builder) IfFunc(fn PredicateFunc, params ...string) *Builder {
	b.opts = append(b.opts, IfFunc(fn, params...))
	return b
}

// VerifySource requires the resolved units to match a precomputed
// fingerprint.
func (b *Builder) VerifySource(fp string) *Builder {
	b.opts = append(b.opts, VerifySource(fp))
	return b
}

// Exec appends a snippet callback to the chain.
func (b *Builder) Exec(snippet string) *Builder {
	b.callbacks = append(b.callbacks, Exec(snippet))
	return b
}

// Call appends a function callback to the chain.
func (b *Builder) Call(fn PredicateFunc, params ...string) *Builder {
	b.callbacks = append(b.callbacks, Call(fn, params...))
	return b
}

// Break appends a debugger-entry callback to the chain.
func (b *Builder) Break() *Builder {
	b.callbacks = append(b.callbacks, Break())
	return b
}

// Goto appends a redirect callback to the chain.
func (b *Builder) Goto(target any) *Builder {
	b.callbacks = append(b.callbacks, Goto(target))
	return b
}

func (b *Builder) stageErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Apply commits the builder: the trigger resolves, every callback passes
// its registration-time checks, and exactly one handler registers — or
// nothing does.
func (b *Builder) Apply() (*Handler, error) {
	if b.err != nil {
		return nil, b.err
	}
	if !b.hasEntity {
		return nil, fmt.Errorf("builder has no entity: call On first")
	}
	if len(b.callbacks) == 0 {
		return nil, fmt.Errorf("builder has no callbacks: add Exec, Call, Break, or Goto")
	}
	trg, err := b.engine.When(b.entity, b.idents, b.opts...)
	if err != nil {
		return nil, err
	}
	return trg.Attach(b.callbacks...)
}
