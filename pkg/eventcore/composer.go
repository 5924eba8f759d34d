package eventcore

import "context"

// Compose runs one Context Composer pass (spec §4.3): it serialises
// every Fact's filter tagged with that Fact's id, queries the log once,
// decodes each returned event, routes each decoded event to every Fact
// whose id is in its tag set (isolation), and threads the context
// through the Facts in declaration order. It returns the final
// context, the maximum sequence number observed (0 if no Fact matched
// anything), and the union of all Facts' filters — the precondition
// the caller should pass to AppendWithConflictCheck.
func Compose[C any](ctx context.Context, log EventLog, facts []Fact[C], decode Decoder[any], initial C) (finalCtx C, maxSeq int64, union Filter, err error) {
	if len(facts) == 0 {
		// spec §8 boundary behaviour: zero facts -> context equals
		// initial, max_seq 0, union filter matches nothing.
		return initial, 0, Empty(), nil
	}

	var tagged []TaggedClause
	filters := make([]Filter, len(facts))
	for i, f := range facts {
		tagged = append(tagged, TagWithFact(f.filter, f.id)...)
		filters[i] = f.filter
	}

	events, max, err := log.QueryWithTags(ctx, tagged)
	if err != nil {
		return initial, 0, Empty(), err
	}

	// Decode once, up front: a decode error is a SystemError regardless
	// of which Fact(s) would have received the event (spec §4.3 step 3).
	decoded := make([]DecodedEvent, len(events))
	for i, e := range events {
		v, derr := decode(e.EventType, e.Payload)
		if derr != nil {
			return initial, 0, Empty(), newDecodeError("compose", e.EventType, derr)
		}
		decoded[i] = DecodedEvent{Stored: e.StoredEvent, Event: v}
	}

	factCtx := initial
	for _, f := range facts {
		var own []DecodedEvent
		for i, e := range events {
			if e.HasFact(f.id) {
				own = append(own, decoded[i])
			}
		}
		factCtx = f.apply(factCtx, own)
	}

	return factCtx, max, Union(filters...), nil
}
