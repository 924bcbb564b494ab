package table

import (
	"log"
	"sort"

	"github.com/schedlab/cadence/sched"
)

// defaultBatchSize is the number of entities per batch handed to the
// scheduler.
const defaultBatchSize = 256

// A Query matches every entity that holds all of the listed components. It
// implements sched.Query.
type Query struct {
	table     *Table
	reads     []sched.ComponentID
	writes    []sched.ComponentID
	batchSize int
}

// NewQuery creates a Query over the table. The reads and writes lists
// declare the footprint and double as the matching condition.
func (t *Table) NewQuery(reads, writes []sched.ComponentID) *Query {
	q := new(Query)
	q.table = t
	q.reads = reads
	q.writes = writes
	q.batchSize = defaultBatchSize

	return q
}

// SetBatchSize overrides the batch granularity. Smaller batches give
// multi-threaded systems more chunks to spread across workers.
func (q *Query) SetBatchSize(n int) {
	if n < 1 {
		log.Panicf("invalid batch size %d", n)
	}

	q.batchSize = n
}

// Footprint returns the declared component access of this query.
func (q *Query) Footprint() sched.Footprint {
	return sched.Footprint{Reads: q.reads, Writes: q.writes}
}

// Batches returns the matched entities in ascending entity order, chunked
// by the batch size. The Columns payload of every batch is a *View over the
// table.
func (q *Query) Batches() []sched.Batch {
	matched := q.match()
	view := &View{table: q.table}

	var batches []sched.Batch
	for start := 0; start < len(matched); start += q.batchSize {
		end := start + q.batchSize
		if end > len(matched) {
			end = len(matched)
		}

		batches = append(batches, sched.Batch{
			Entities: matched[start:end],
			Columns:  view,
		})
	}

	return batches
}

func (q *Query) match() []uint64 {
	q.table.lock.RLock()
	defer q.table.lock.RUnlock()

	var matched []uint64
	for e, held := range q.table.entities {
		if q.holdsAll(held) {
			matched = append(matched, e)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i] < matched[j]
	})

	return matched
}

func (q *Query) holdsAll(held map[sched.ComponentID]bool) bool {
	for _, c := range q.reads {
		if !held[c] {
			return false
		}
	}

	for _, c := range q.writes {
		if !held[c] {
			return false
		}
	}

	return true
}

// A View is the Columns payload of every batch a Query produces. It
// accesses component values without structural locking; the scheduler's
// stage partition keeps concurrent access conflict-free.
type View struct {
	table *Table
}

// Get reads a component value of a matched entity.
func (v *View) Get(entity uint64, component sched.ComponentID) float64 {
	value, ok := v.table.Get(entity, component)
	if !ok {
		log.Panicf("entity %d does not hold component %d", entity, component)
	}

	return value
}

// Set writes a component value of a matched entity.
func (v *View) Set(entity uint64, component sched.ComponentID, value float64) {
	v.table.Set(entity, component, value)
}
