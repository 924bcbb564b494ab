package sched

import (
	"fmt"
	"strings"
)

// A planMember is the compiled snapshot of one system. The executor
// dispatches from planMembers only, so a running tick never reads a
// descriptor that a callback is mutating.
type planMember struct {
	id        SystemID
	name      string
	order     uint64
	desc      Desc
	footprint Footprint
	stage     int
	dependsOn []SystemID
}

// A StageSystem is one system's slot in a stage, as seen by diagnostics.
type StageSystem struct {
	ID   SystemID
	Name string

	// Pinned systems run on the main worker. The others fan out to the
	// pool.
	Pinned bool
}

// A Stage is a set of systems that the executor may run concurrently.
// Ordering edges never connect two members of the same stage, and member
// footprints are mutually conflict-free.
type Stage struct {
	// Exclusive stages hold a single immediate system that runs with no
	// other system in flight.
	Exclusive bool

	Systems []StageSystem

	members []*planMember
}

// A Plan is one compiled stage partition. Plans are immutable; the scheduler
// swaps in a fresh Plan when the registry changes.
type Plan struct {
	// ID is unique per compilation. Seq counts compilations within one
	// scheduler.
	ID  string
	Seq uint64

	// BuiltAtTick is the tick whose Progress call compiled this plan. The
	// first plan is built at tick 0.
	BuiltAtTick uint64

	Stages []*Stage

	// Excluded lists systems reported unschedulable and left out of the
	// stages. They are Skipped every tick until the registry changes.
	Excluded []SystemID

	members map[SystemID]*planMember
}

// SystemCount returns the number of systems across all stages.
func (p *Plan) SystemCount() int {
	return len(p.members)
}

// String renders the stage partition, one stage per line.
func (p *Plan) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "plan %d (%d stages)\n", p.Seq, len(p.Stages))

	for i, stage := range p.Stages {
		fmt.Fprintf(&b, "  stage %d", i)
		if stage.Exclusive {
			b.WriteString(" [exclusive]")
		}

		b.WriteString(":")

		for _, s := range stage.Systems {
			fmt.Fprintf(&b, " %s", s.Name)
			if s.Pinned && !stage.Exclusive {
				b.WriteString("(main)")
			}
		}

		b.WriteString("\n")
	}

	return b.String()
}
