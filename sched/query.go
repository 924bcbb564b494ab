package sched

// A ComponentID identifies one column of data that systems read or write.
// The host storage assigns the values; the scheduler only compares them.
type ComponentID uint32

// A Footprint declares the components a query touches. The scheduler uses
// footprints to decide which systems may share a stage.
type Footprint struct {
	Reads  []ComponentID
	Writes []ComponentID
}

// ConflictsWith reports whether two footprints cannot run concurrently. Two
// footprints conflict when one writes a component the other reads or writes.
// Shared reads never conflict.
func (f Footprint) ConflictsWith(other Footprint) bool {
	if overlaps(f.Writes, other.Writes) {
		return true
	}

	if overlaps(f.Writes, other.Reads) {
		return true
	}

	if overlaps(f.Reads, other.Writes) {
		return true
	}

	return false
}

func overlaps(a, b []ComponentID) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}

	set := make(map[ComponentID]struct{}, len(a))
	for _, c := range a {
		set[c] = struct{}{}
	}

	for _, c := range b {
		if _, ok := set[c]; ok {
			return true
		}
	}

	return false
}

// A Batch is one contiguous run of matched entities. The scheduler treats
// batches as opaque units of work. Multi-threaded systems may have their
// batches dispatched to different workers within the same activation.
type Batch struct {
	// Entities holds the matched entity handles, encoded however the host
	// storage encodes them.
	Entities []uint64

	// Columns holds the host storage's column data for this batch. The
	// scheduler passes it through untouched.
	Columns interface{}
}

// A Query tells the scheduler what data a system works on. The scheduler
// owns no storage. The host implements Query on top of whatever storage it
// uses, and the scheduler calls it at dispatch time.
type Query interface {
	// Footprint returns the components the query reads and writes. The
	// planner calls it once per plan build, so it must be stable between
	// registry mutations.
	Footprint() Footprint

	// Batches returns the currently matched data. The executor calls it on
	// every activation, right before the callback runs.
	Batches() []Batch
}
