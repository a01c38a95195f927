package probez

// InternIndex maps strings to dense interning ids, one id space per table.
// Ids start at 1 in every table and are only meaningful within the current
// generation. New definitions are queued until they are written out with a
// packet. An InternIndex belongs to one thread.
type InternIndex struct {
	tables     map[uint32]*internTable
	pending    []InternedEntry
	generation uint64
}

type internTable struct {
	ids  map[string]uint64
	next uint64
}

// InternedEntry is one definition awaiting emission.
type InternedEntry struct {
	Table uint32
	IID   uint64
	Value string
}

// NewInternIndex returns an empty index.
func NewInternIndex() *InternIndex {
	return &InternIndex{tables: make(map[uint32]*internTable)}
}

// Intern returns the id of value in table. fresh is true when the id was
// assigned by this call, in which case its definition has been queued.
func (x *InternIndex) Intern(table uint32, value string) (iid uint64, fresh bool) {
	t := x.tables[table]
	if t == nil {
		t = &internTable{ids: make(map[string]uint64)}
		x.tables[table] = t
	}
	if id, ok := t.ids[value]; ok {
		return id, false
	}
	t.next++
	t.ids[value] = t.next
	x.pending = append(x.pending, InternedEntry{Table: table, IID: t.next, Value: value})
	return t.next, true
}

// Reset discards every id and pending definition and starts a new generation.
func (x *InternIndex) Reset() {
	clear(x.tables)
	x.pending = x.pending[:0]
	x.generation++
}

// Generation counts the resets so far.
func (x *InternIndex) Generation() uint64 {
	return x.generation
}

// Pending returns the queued definitions without consuming them.
func (x *InternIndex) Pending() []InternedEntry {
	return x.pending
}

// takePending hands the queued definitions to a packet. The returned slice
// is only valid until the next Intern call.
func (x *InternIndex) takePending() []InternedEntry {
	p := x.pending
	x.pending = x.pending[:0]
	return p
}
