// Package eventcore implements an aggregateless event-sourcing engine:
// a single append-only event log, a declarative filter over it, facts
// that project filtered subsets into a typed context, and a command
// handler runtime that composes a context, runs business logic, and
// appends the result with optimistic concurrency control.
package eventcore

import (
	"context"
	"encoding/json"
	"time"
)

// StoredEvent is an event as persisted in the log: assigned sequence
// number, server timestamp, type tag, and raw JSON payload/metadata.
// The core never interprets Payload beyond passing it to a user Decoder.
type StoredEvent struct {
	Sequence   int64
	OccurredAt time.Time
	EventType  string
	Payload    json.RawMessage
	Metadata   map[string]string
}

// EventWithTags pairs a StoredEvent with the set of FactIDs whose filter
// clause it satisfied. This is the mechanism that lets a single query
// serve many Facts without re-querying per Fact.
type EventWithTags struct {
	StoredEvent
	FactIDs []FactID
}

// HasFact reports whether id is among the Fact ids this event matched.
func (e EventWithTags) HasFact(id FactID) bool {
	for _, f := range e.FactIDs {
		if f == id {
			return true
		}
	}
	return false
}

// EncodedEvent is an event already reduced to its wire shape, ready for
// AppendUnchecked/AppendWithConflictCheck. The EventLog never calls a
// user encode/decode function itself.
type EncodedEvent struct {
	Type    string
	Payload []byte
}

// TaggedClause is one Event Filter clause annotated with the id of the
// Fact that contributed it, as sent to QueryWithTags.
type TaggedClause struct {
	Clause Clause
	FactID FactID
}

// AppendResult is the outcome of a conditional append.
type AppendResult struct {
	// Sequences holds the sequence numbers assigned to the appended
	// events, in insertion order. Empty when Conflicted is true.
	Sequences []int64
	// Conflicted is true when ConflictCount > 0 events matching the
	// conflict filter were found above the caller's last-seen sequence.
	// No events from the batch were persisted in that case.
	Conflicted    bool
	ConflictCount int
}

// EventLog is the Event Log component (spec §4.1): persist and query
// events, enforcing global ordering and conditional append.
type EventLog interface {
	// AppendUnchecked inserts events unconditionally, returning their
	// assigned sequence numbers in insertion order. Administrative
	// operation: test fixtures and legacy-event import only, never
	// used by the command handler runtime.
	AppendUnchecked(ctx context.Context, events []EncodedEvent, metadata map[string]string) ([]int64, error)

	// QueryWithTags returns every event matching at least one tagged
	// clause, each annotated with the set of FactIDs it satisfied,
	// ordered by ascending sequence, plus the maximum matching
	// sequence number (0 if none matched).
	QueryWithTags(ctx context.Context, clauses []TaggedClause) ([]EventWithTags, int64, error)

	// AppendWithConflictCheck appends events atomically, but only if
	// no event matching conflictFilter has a sequence number greater
	// than lastSeen. The conflict check and the insert happen in the
	// same statement/transaction.
	AppendWithConflictCheck(ctx context.Context, events []EncodedEvent, metadata map[string]string, conflictFilter Filter, lastSeen int64) (AppendResult, error)
}

// Encoder turns a user domain event into its wire type name and JSON
// payload.
type Encoder[E any] func(event E) (eventType string, payload []byte, err error)

// Decoder turns a stored event's type name and payload back into a user
// domain event. A strict Decoder rejects unrecognised type names with a
// DecodeError rather than guessing.
type Decoder[E any] func(eventType string, payload []byte) (event E, err error)

// DecodedEvent pairs a StoredEvent with its decoded user-level value.
// Event is opaque to the core (spec §9: "the core never inspects
// payloads") — each Fact's apply function knows the concrete type its
// own command handler decodes to and type-asserts accordingly, the
// same way the teacher's StateProjector.TransitionFn takes an any and
// each domain example knows its own event shape.
type DecodedEvent struct {
	Stored StoredEvent
	Event  any
}
