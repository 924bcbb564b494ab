package sched

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// An EdgeKind tells how strongly an ordering edge binds.
type EdgeKind int

const (
	// EdgeAfter only orders the two systems.
	EdgeAfter EdgeKind = iota

	// EdgeDependsOn orders the two systems and skips the dependent on
	// ticks where the dependency did not run.
	EdgeDependsOn
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeAfter:
		return "after"
	case EdgeDependsOn:
		return "depends-on"
	default:
		return fmt.Sprintf("EdgeKind(%d)", int(k))
	}
}

type systemRecord struct {
	id      SystemID
	order   uint64
	desc    Desc
	enabled bool
}

// A Registry holds the declarative state of an engine: the registered
// systems, their ordering edges, and the phase table. All methods are safe
// for concurrent use. Structural mutations mark the registry dirty, which
// makes the scheduler rebuild its plan at the start of the next tick.
type Registry struct {
	lock sync.Mutex

	phases    *phaseTable
	slots     *slotPool
	records   map[SystemID]*systemRecord
	nextOrder uint64

	// edges[a][b] = kind means a runs after b.
	edges map[SystemID]map[SystemID]EdgeKind

	dirty bool
}

// NewRegistry creates an empty Registry with the built-in phases.
func NewRegistry() *Registry {
	r := new(Registry)
	r.phases = newPhaseTable()
	r.slots = newSlotPool()
	r.records = make(map[SystemID]*systemRecord)
	r.edges = make(map[SystemID]map[SystemID]EdgeKind)

	return r
}

// Register validates a descriptor and adds the system. The returned SystemID
// is never reused, even after the system is deregistered.
func (r *Registry) Register(desc Desc) (SystemID, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := r.validateDesc(&desc); err != nil {
		return NilSystem, err
	}

	index, generation := r.slots.acquire()
	id := makeSystemID(index, generation)

	r.nextOrder++
	if desc.Name == "" {
		desc.Name = fmt.Sprintf("system%d", r.nextOrder)
	}

	rec := &systemRecord{
		id:      id,
		order:   r.nextOrder,
		desc:    desc,
		enabled: true,
	}
	r.records[id] = rec

	for _, to := range desc.After {
		r.addEdgeLocked(id, to, EdgeAfter)
	}

	for _, to := range desc.DependsOn {
		r.addEdgeLocked(id, to, EdgeDependsOn)
	}

	// A before edge on this system is stored as an after edge on the
	// target, so the graph only ever sees one edge direction.
	for _, target := range desc.Before {
		r.addEdgeLocked(target, id, EdgeAfter)
	}

	rec.desc.After = nil
	rec.desc.Before = nil
	rec.desc.DependsOn = nil

	r.dirty = true

	return id, nil
}

func (r *Registry) validateDesc(desc *Desc) error {
	if desc.Action == nil {
		return fmt.Errorf("system %q has no action", desc.Name)
	}

	if desc.Interval < 0 || math.IsNaN(float64(desc.Interval)) {
		return fmt.Errorf("system %q has invalid interval %f",
			desc.Name, desc.Interval)
	}

	if !r.phases.valid(desc.Phase) {
		return fmt.Errorf("system %q uses unregistered phase %d",
			desc.Name, desc.Phase)
	}

	edgeLists := [][]SystemID{desc.After, desc.Before, desc.DependsOn}
	kinds := []EdgeKind{EdgeAfter, EdgeAfter, EdgeDependsOn}
	for i, list := range edgeLists {
		for _, to := range list {
			if _, ok := r.records[to]; !ok {
				return &InvalidEdgeError{
					From:   desc.Name,
					To:     to.String(),
					Kind:   kinds[i],
					Reason: "target is not registered",
				}
			}
		}
	}

	return nil
}

// addEdgeLocked records that a runs after b. Duplicates collapse, with
// depends-on winning over after.
func (r *Registry) addEdgeLocked(a, b SystemID, kind EdgeKind) {
	m, ok := r.edges[a]
	if !ok {
		m = make(map[SystemID]EdgeKind)
		r.edges[a] = m
	}

	if existing, ok := m[b]; ok && existing == EdgeDependsOn {
		return
	}

	m[b] = kind
}

// Deregister removes a system. Every edge that references it, declared by it
// or by any other system, is scrubbed so later plans carry no dangling
// constraint.
func (r *Registry) Deregister(id SystemID) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.records[id]; !ok {
		return fmt.Errorf("system %s is not registered", id)
	}

	delete(r.records, id)
	delete(r.edges, id)

	for _, m := range r.edges {
		delete(m, id)
	}

	r.slots.release(id.index())
	r.dirty = true

	return nil
}

// AddEdge orders system a after system b. With EdgeDependsOn, a is also
// skipped on ticks where b does not run.
func (r *Registry) AddEdge(a, b SystemID, kind EdgeKind) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if a == b {
		return &InvalidEdgeError{
			From:   r.nameLocked(a),
			To:     r.nameLocked(b),
			Kind:   kind,
			Reason: "a system cannot be ordered against itself",
		}
	}

	for _, id := range []SystemID{a, b} {
		if _, ok := r.records[id]; !ok {
			return &InvalidEdgeError{
				From:   r.nameLocked(a),
				To:     r.nameLocked(b),
				Kind:   kind,
				Reason: fmt.Sprintf("system %s is not registered", id),
			}
		}
	}

	r.addEdgeLocked(a, b, kind)
	r.dirty = true

	return nil
}

// RemoveEdge deletes the ordering edge between a and b, if any.
func (r *Registry) RemoveEdge(a, b SystemID) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	m, ok := r.edges[a]
	if !ok {
		return nil
	}

	if _, ok := m[b]; !ok {
		return nil
	}

	delete(m, b)
	r.dirty = true

	return nil
}

// Enable lets a disabled system run again. Enabling does not rebuild the
// plan; the system keeps its place in the stages.
func (r *Registry) Enable(id SystemID) error {
	return r.setEnabled(id, true)
}

// Disable makes gating skip the system every tick. Its interval accumulator
// keeps accruing while disabled.
func (r *Registry) Disable(id SystemID) error {
	return r.setEnabled(id, false)
}

func (r *Registry) setEnabled(id SystemID, enabled bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("system %s is not registered", id)
	}

	rec.enabled = enabled

	return nil
}

// SetInterval changes the interval throttle of a registered system.
func (r *Registry) SetInterval(id SystemID, interval VTimeInSec) error {
	if interval < 0 || math.IsNaN(float64(interval)) {
		return fmt.Errorf("invalid interval %f", interval)
	}

	return r.mutateDesc(id, func(d *Desc) { d.Interval = interval })
}

// SetRate changes the rate throttle and tick source of a registered system.
func (r *Registry) SetRate(id SystemID, rate uint, source TickSource) error {
	return r.mutateDesc(id, func(d *Desc) {
		d.Rate = rate
		d.TickSource = source
	})
}

// SetMultiThreaded changes the threading eligibility of a registered system.
func (r *Registry) SetMultiThreaded(id SystemID, multiThreaded bool) error {
	return r.mutateDesc(id, func(d *Desc) { d.MultiThreaded = multiThreaded })
}

// SetImmediate changes the staging mode of a registered system.
func (r *Registry) SetImmediate(id SystemID, immediate bool) error {
	return r.mutateDesc(id, func(d *Desc) { d.Immediate = immediate })
}

// mutateDesc applies an edit to a live descriptor. The compiled plan
// snapshots descriptors, so every edit marks the registry dirty.
func (r *Registry) mutateDesc(id SystemID, edit func(*Desc)) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("system %s is not registered", id)
	}

	edit(&rec.desc)
	r.dirty = true

	return nil
}

// RegisterPhase adds a custom phase directly after the given phase and
// returns its handle.
func (r *Registry) RegisterPhase(name string, after Phase) (Phase, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	p, err := r.phases.register(name, after)
	if err != nil {
		return PhaseDefault, err
	}

	r.dirty = true

	return p, nil
}

// System returns a copy of the descriptor of a registered system.
func (r *Registry) System(id SystemID) (Desc, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return Desc{}, false
	}

	return rec.desc, true
}

// Enabled reports whether a system participates in ticks. Unknown systems
// report false.
func (r *Registry) Enabled(id SystemID) bool {
	return r.isEnabled(id)
}

// Name returns the system's name, or the raw handle string for an unknown
// system.
func (r *Registry) Name(id SystemID) string {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.nameLocked(id)
}

func (r *Registry) nameLocked(id SystemID) string {
	if rec, ok := r.records[id]; ok {
		return rec.desc.Name
	}

	return id.String()
}

// Count returns the number of registered systems.
func (r *Registry) Count() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return len(r.records)
}

// ForEach visits every system in registration order.
func (r *Registry) ForEach(visit func(id SystemID, desc Desc)) {
	for _, rec := range r.byOrder() {
		visit(rec.id, rec.desc)
	}
}

// byOrder snapshots the records sorted by registration order.
func (r *Registry) byOrder() []*systemRecord {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.byOrderLocked()
}

func (r *Registry) byOrderLocked() []*systemRecord {
	recs := make([]*systemRecord, 0, len(r.records))
	for _, rec := range r.records {
		recs = append(recs, rec)
	}

	sortRecords(recs)

	return recs
}

func sortRecords(recs []*systemRecord) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].order < recs[j].order
	})
}

// edgeSnapshot deep-copies the edge store.
func (r *Registry) edgeSnapshot() map[SystemID]map[SystemID]EdgeKind {
	r.lock.Lock()
	defer r.lock.Unlock()

	out := make(map[SystemID]map[SystemID]EdgeKind, len(r.edges))
	for a, m := range r.edges {
		cp := make(map[SystemID]EdgeKind, len(m))
		for b, kind := range m {
			cp[b] = kind
		}

		out[a] = cp
	}

	return out
}

// isEnabled reports the enable state without copying the descriptor.
func (r *Registry) isEnabled(id SystemID) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[id]

	return ok && rec.enabled
}

// consumeDirty reports whether the registry changed since the last call and
// resets the flag.
func (r *Registry) consumeDirty() bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	d := r.dirty
	r.dirty = false

	return d
}

// phaseRank exposes the rank of a phase to the graph builder.
func (r *Registry) phaseRank(p Phase) int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.phases.rank(p)
}

// PhaseName returns the display name of a phase.
func (r *Registry) PhaseName(p Phase) string {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.phases.name(p)
}
