package conversation

import (
	"cmp"
	"slices"

	"github.com/vovakirdan/wirechat-dm/internal/schema"
)

// State of a conversation view. The only transition is Empty -> Populated.
type State int

const (
	StateEmpty State = iota
	StatePopulated
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePopulated:
		return "populated"
	default:
		return "unknown"
	}
}

// UpdateKind tells a renderer whether to redraw everything or only the tail.
type UpdateKind int

const (
	// UpdateReset is reported for the batch that first populated the view.
	UpdateReset UpdateKind = iota
	// UpdateAppend is reported for every later batch.
	UpdateAppend
)

func (k UpdateKind) String() string {
	if k == UpdateReset {
		return "reset"
	}
	return "append"
}

// Compare orders messages by SentAt, then by the log sequence.
// Records equal on both keep their arrival order under a stable sort.
func Compare(a, b schema.Message) int {
	if c := a.SentAt.Compare(b.SentAt); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

// View is the locally materialized, ordered message list of one conversation.
// It is not safe for concurrent use.
type View struct {
	msgs  []schema.Message
	state State
}

// NewView returns an empty view.
func NewView() *View {
	return &View{}
}

// Apply folds a batch into the view and re-sorts the whole collection.
// Only Added changes are consumed. A batch carrying an error, or adding
// nothing, leaves the view untouched and reports changed == false.
func (v *View) Apply(b schema.Batch) (kind UpdateKind, added int, changed bool) {
	records := b.Added()
	if len(records) == 0 {
		return UpdateAppend, 0, false
	}

	v.msgs = append(v.msgs, records...)
	slices.SortStableFunc(v.msgs, Compare)

	if v.state == StateEmpty {
		v.state = StatePopulated
		return UpdateReset, len(records), true
	}
	return UpdateAppend, len(records), true
}

// Messages returns a copy of the ordered list.
func (v *View) Messages() []schema.Message {
	return slices.Clone(v.msgs)
}

func (v *View) State() State {
	return v.state
}

func (v *View) Len() int {
	return len(v.msgs)
}
