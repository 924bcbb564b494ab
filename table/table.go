// Package table is a small in-memory entity table with a Query
// implementation for the scheduler. Examples and tests schedule against it;
// real hosts bring their own storage and implement sched.Query on top of
// that instead.
package table

import (
	"log"
	"sync"

	"github.com/schedlab/cadence/sched"
)

// A column holds the values of one component, keyed by entity.
type column struct {
	id     sched.ComponentID
	name   string
	values map[uint64]float64
}

// A Table stores entities with scalar components. Structural operations,
// AddComponent, Spawn, and Despawn, take the table lock and must not run
// concurrently with system callbacks; schedule them in Immediate systems.
// Value access on matched entities relies on the scheduler's conflict-free
// stages instead of per-access locks.
type Table struct {
	lock sync.RWMutex

	columns map[sched.ComponentID]*column
	names   map[string]sched.ComponentID

	nextComponent sched.ComponentID
	nextEntity    uint64

	// entities[e] is the set of components entity e holds.
	entities map[uint64]map[sched.ComponentID]bool
}

// New creates an empty Table.
func New() *Table {
	t := new(Table)
	t.columns = make(map[sched.ComponentID]*column)
	t.names = make(map[string]sched.ComponentID)
	t.entities = make(map[uint64]map[sched.ComponentID]bool)

	return t
}

// AddComponent registers a component column and returns its ID. Adding the
// same name twice returns the existing column.
func (t *Table) AddComponent(name string) sched.ComponentID {
	t.lock.Lock()
	defer t.lock.Unlock()

	if id, ok := t.names[name]; ok {
		return id
	}

	t.nextComponent++
	id := t.nextComponent
	t.columns[id] = &column{
		id:     id,
		name:   name,
		values: make(map[uint64]float64),
	}
	t.names[name] = id

	return id
}

// ComponentID looks a component up by name.
func (t *Table) ComponentID(name string) (sched.ComponentID, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()

	id, ok := t.names[name]

	return id, ok
}

// Spawn creates an entity holding the given components, all zero-valued.
func (t *Table) Spawn(components ...sched.ComponentID) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.nextEntity++
	e := t.nextEntity

	held := make(map[sched.ComponentID]bool, len(components))
	for _, c := range components {
		col, ok := t.columns[c]
		if !ok {
			log.Panicf("component %d was never added", c)
		}

		held[c] = true
		col.values[e] = 0
	}

	t.entities[e] = held

	return e
}

// Despawn removes an entity and its component values. Despawning an unknown
// entity is a no-op.
func (t *Table) Despawn(entity uint64) {
	t.lock.Lock()
	defer t.lock.Unlock()

	held, ok := t.entities[entity]
	if !ok {
		return
	}

	for c := range held {
		delete(t.columns[c].values, entity)
	}

	delete(t.entities, entity)
}

// EntityCount returns the number of live entities.
func (t *Table) EntityCount() int {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return len(t.entities)
}

// Get reads one component value of an entity.
func (t *Table) Get(
	entity uint64,
	component sched.ComponentID,
) (float64, bool) {
	t.lock.RLock()
	col, ok := t.columns[component]
	t.lock.RUnlock()

	if !ok {
		return 0, false
	}

	v, ok := col.values[entity]

	return v, ok
}

// Set writes one component value of an entity that holds the component.
func (t *Table) Set(
	entity uint64,
	component sched.ComponentID,
	value float64,
) {
	t.lock.RLock()
	col, ok := t.columns[component]
	t.lock.RUnlock()

	if !ok {
		log.Panicf("component %d was never added", component)
	}

	if _, held := col.values[entity]; !held {
		log.Panicf("entity %d does not hold component %d", entity, component)
	}

	col.values[entity] = value
}
