package schema

// ChangeType describes what happened to a record in a watched collection.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is one record-level event inside a batch.
type Change struct {
	Type   ChangeType `json:"type"`
	Record Message    `json:"record"`
}

// Batch is one delivery unit from a watch.
// A batch with a non-nil Err carries no usable changes.
type Batch struct {
	Changes []Change `json:"changes"`
	Err     error    `json:"-"`
}

// AddedBatch wraps messages as a batch of Added changes.
func AddedBatch(msgs ...Message) Batch {
	changes := make([]Change, 0, len(msgs))
	for _, m := range msgs {
		changes = append(changes, Change{Type: ChangeAdded, Record: m})
	}
	return Batch{Changes: changes}
}

// Added returns the records of the batch's Added changes in delivery order.
func (b Batch) Added() []Message {
	if b.Err != nil {
		return nil
	}
	var out []Message
	for _, c := range b.Changes {
		if c.Type == ChangeAdded {
			out = append(out, c.Record)
		}
	}
	return out
}

// LastSeq returns the highest Seq among the batch's records, or 0.
func (b Batch) LastSeq() int64 {
	var last int64
	for _, c := range b.Changes {
		if c.Record.Seq > last {
			last = c.Record.Seq
		}
	}
	return last
}
