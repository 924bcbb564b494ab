package sched

import (
	"fmt"
	"log"
)

// A Phase is a named rank in the tick. All systems in an earlier phase run
// before any system in a later phase. The zero Phase is the implicit default
// phase, which ranks after every built-in phase, so unphased systems run
// last.
type Phase int

// PhaseDefault is the implicit phase of descriptors that leave Phase unset.
const PhaseDefault Phase = 0

// The built-in phases, in rank order. PhaseOnStart systems run on the first
// tick only.
const (
	PhaseOnStart Phase = iota + 1
	PhaseOnLoad
	PhasePostLoad
	PhasePreUpdate
	PhaseOnUpdate
	PhaseOnValidate
	PhasePostUpdate
	PhasePreStore
	PhaseOnStore
)

var builtinPhaseNames = map[Phase]string{
	PhaseOnStart:    "OnStart",
	PhaseOnLoad:     "OnLoad",
	PhasePostLoad:   "PostLoad",
	PhasePreUpdate:  "PreUpdate",
	PhaseOnUpdate:   "OnUpdate",
	PhaseOnValidate: "OnValidate",
	PhasePostUpdate: "PostUpdate",
	PhasePreStore:   "PreStore",
	PhaseOnStore:    "OnStore",
}

// A phaseTable maps phase handles to names and keeps the rank order. Handles
// stay stable when custom phases are inserted; only the order slice moves.
type phaseTable struct {
	names []string
	order []Phase
	ranks map[Phase]int
}

func newPhaseTable() *phaseTable {
	t := new(phaseTable)
	t.names = make([]string, 1, 16)
	t.names[0] = "Default"

	for p := PhaseOnStart; p <= PhaseOnStore; p++ {
		t.names = append(t.names, builtinPhaseNames[p])
		t.order = append(t.order, p)
	}

	t.order = append(t.order, PhaseDefault)
	t.reindex()

	return t
}

func (t *phaseTable) reindex() {
	t.ranks = make(map[Phase]int, len(t.order))
	for i, p := range t.order {
		t.ranks[p] = i
	}
}

// register inserts a new phase directly after the given phase.
func (t *phaseTable) register(name string, after Phase) (Phase, error) {
	pos, ok := t.ranks[after]
	if !ok {
		return PhaseDefault,
			fmt.Errorf("cannot register phase %q: unknown anchor phase %d",
				name, after)
	}

	p := Phase(len(t.names))
	t.names = append(t.names, name)

	t.order = append(t.order, PhaseDefault)
	copy(t.order[pos+2:], t.order[pos+1:])
	t.order[pos+1] = p

	t.reindex()

	return p, nil
}

// rank returns the position of a phase in the tick order.
func (t *phaseTable) rank(p Phase) int {
	r, ok := t.ranks[p]
	if !ok {
		log.Panicf("phase %d was never registered", p)
	}

	return r
}

func (t *phaseTable) valid(p Phase) bool {
	_, ok := t.ranks[p]
	return ok
}

func (t *phaseTable) name(p Phase) string {
	if int(p) < 0 || int(p) >= len(t.names) {
		return fmt.Sprintf("Phase(%d)", p)
	}

	return t.names[p]
}
