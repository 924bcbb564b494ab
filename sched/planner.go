package sched

import "fmt"

// compilePlan turns the current registry content into a Plan. A cycle fails
// the compilation outright. An unschedulable system yields both a usable
// plan, with the system excluded, and the error describing the exclusion.
func compilePlan(reg *Registry, seq, tick uint64) (*Plan, error) {
	g, err := buildGraph(reg)
	if err != nil {
		return nil, err
	}

	members := makeMembers(g)
	stages := partition(g, members)
	excluded, conflictErr := validateStages(stages)

	p := &Plan{
		ID:          GetIDGenerator().Generate(),
		Seq:         seq,
		BuiltAtTick: tick,
		members:     make(map[SystemID]*planMember, len(members)),
	}

	for _, stage := range stages {
		if len(stage.members) == 0 {
			continue
		}

		stage.finalize(len(p.Stages))
		p.Stages = append(p.Stages, stage)

		for _, m := range stage.members {
			p.members[m.id] = m
		}
	}

	for _, m := range excluded {
		p.Excluded = append(p.Excluded, m.id)
	}

	return p, conflictErr
}

func makeMembers(g *Graph) []*planMember {
	members := make([]*planMember, len(g.nodes))
	for i, node := range g.nodes {
		m := &planMember{
			id:    node.id,
			name:  node.name,
			order: node.order,
			desc:  node.desc,
		}

		if node.desc.Query != nil {
			m.footprint = node.desc.Query.Footprint()
		}

		for _, p := range g.dependsOnPreds(i) {
			m.dependsOn = append(m.dependsOn, g.nodes[p].id)
		}

		members[i] = m
	}

	return members
}

// partition scans the topological order and greedily packs systems into
// stages. A system opens a new stage when it is ordered after a member of
// the current stage, when its footprint conflicts with a member, or when
// exclusivity is involved on either side.
func partition(g *Graph, members []*planMember) []*Stage {
	var stages []*Stage
	var current *Stage

	flush := func() {
		if current != nil && len(current.members) > 0 {
			stages = append(stages, current)
		}

		current = nil
	}

	for _, n := range g.Topo() {
		m := members[n]

		if m.desc.Immediate {
			flush()
			stages = append(stages, &Stage{
				Exclusive: true,
				members:   []*planMember{m},
			})

			continue
		}

		if current != nil && !fitsStage(g, n, m, current) {
			flush()
		}

		if current == nil {
			current = new(Stage)
		}

		current.members = append(current.members, m)
	}

	flush()

	return stages
}

// fitsStage reports whether node n can join the stage under construction.
// Nodes arrive in topological order, so only an n-after-member edge is
// possible between n and the stage.
func fitsStage(g *Graph, n int, m *planMember, stage *Stage) bool {
	for _, other := range stage.members {
		oi := g.index[other.id]
		if _, ok := g.kind[n][oi]; ok {
			return false
		}

		if m.footprint.ConflictsWith(other.footprint) {
			return false
		}
	}

	return true
}

// validateStages re-checks the partition invariants. The partition rules
// make a violation impossible, but a violation is reported and the offender
// excluded rather than silently repaired.
func validateStages(stages []*Stage) ([]*planMember, error) {
	var excluded []*planMember
	var firstErr error

	report := func(offender, other *planMember, reason string) {
		excluded = append(excluded, offender)

		if firstErr == nil {
			firstErr = &UnschedulableConflictError{
				System: offender.name,
				Other:  other.name,
				Reason: reason,
			}
		}
	}

	for _, stage := range stages {
		offenders := make(map[*planMember]bool)

		for i, m := range stage.members {
			if m.desc.Immediate && len(stage.members) > 1 {
				other := stage.members[0]
				if other == m {
					other = stage.members[1]
				}

				report(m, other, "immediate system shares a stage")
				offenders[m] = true

				continue
			}

			for j := 0; j < i; j++ {
				prev := stage.members[j]
				if offenders[prev] {
					continue
				}

				if m.footprint.ConflictsWith(prev.footprint) {
					report(m, prev, fmt.Sprintf(
						"footprint conflict with %s in the same stage",
						prev.name))
					offenders[m] = true

					break
				}
			}
		}

		if len(offenders) == 0 {
			continue
		}

		kept := make([]*planMember, 0, len(stage.members)-len(offenders))
		for _, m := range stage.members {
			if !offenders[m] {
				kept = append(kept, m)
			}
		}

		stage.members = kept
	}

	return excluded, firstErr
}

// finalize computes the public view of a stage and stamps the stage index
// onto its members.
func (s *Stage) finalize(index int) {
	s.Systems = make([]StageSystem, 0, len(s.members))

	for _, m := range s.members {
		m.stage = index
		s.Systems = append(s.Systems, StageSystem{
			ID:     m.id,
			Name:   m.name,
			Pinned: !m.desc.MultiThreaded,
		})
	}
}
