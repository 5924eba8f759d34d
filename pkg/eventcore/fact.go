package eventcore

// Fact pairs an Event Filter with a reducer over events of one typed
// event universe into a user-supplied context (spec §4.3). apply sees
// only events matching filter (isolation), in ascending sequence order.
// A Fact is owned by the command handler that created it; its lifetime
// spans one command attempt.
type Fact[C any] struct {
	id     FactID
	filter Filter
	apply  func(ctx C, events []DecodedEvent) C
}

// NewFact creates a Fact with a fresh process-unique id. Per spec §9,
// facts are typically built by small per-command builder functions
// that capture command-specific identifiers in the filter (e.g.
// "for this concert id"), the same way the teacher's domain examples
// build one StateProjector per command invocation.
func NewFact[C any](filter Filter, apply func(ctx C, events []DecodedEvent) C) Fact[C] {
	return Fact[C]{id: newFactID(), filter: filter, apply: apply}
}

// ID returns the Fact's process-unique identifier.
func (f Fact[C]) ID() FactID {
	return f.id
}

// Filter returns the Fact's Event Filter.
func (f Fact[C]) Filter() Filter {
	return f.filter
}
