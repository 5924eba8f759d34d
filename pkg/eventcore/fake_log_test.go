package eventcore

import (
	"context"
	"sync"
)

// fakeEventLog is an in-memory EventLog used by the unit suite, so the
// Composer and Runtime can be exercised without a database — mirroring
// the teacher's own preference for a fake store in non-integration
// tests (z_advisory_locks_test.go exercises the real pool only for
// locking behaviour specific to Postgres).
type fakeEventLog struct {
	mu     sync.Mutex
	events []EventWithTags
	// conflictOn, when non-nil, is called on every AppendWithConflictCheck
	// attempt; returning true forces a conflict for that attempt without
	// consulting the stored events, letting tests script a fixed number
	// of conflicts before success.
	conflictOn func(attempt int) bool
	attempt    int
}

func (f *fakeEventLog) AppendUnchecked(ctx context.Context, events []EncodedEvent, metadata map[string]string) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seqs := make([]int64, len(events))
	for i, e := range events {
		seq := int64(len(f.events) + 1)
		f.events = append(f.events, EventWithTags{
			StoredEvent: StoredEvent{
				Sequence:  seq,
				EventType: e.Type,
				Payload:   append([]byte(nil), e.Payload...),
				Metadata:  metadata,
			},
		})
		seqs[i] = seq
	}
	return seqs, nil
}

func (f *fakeEventLog) QueryWithTags(ctx context.Context, clauses []TaggedClause) ([]EventWithTags, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(clauses) == 0 {
		return nil, 0, nil
	}

	var out []EventWithTags
	var maxSeq int64
	for _, e := range f.events {
		var ids []FactID
		for _, tc := range clauses {
			if tc.Clause.EventType == e.EventType {
				ids = append(ids, tc.FactID)
			}
		}
		if len(ids) == 0 {
			continue
		}
		withTags := e
		withTags.FactIDs = ids
		out = append(out, withTags)
		if e.Sequence > maxSeq {
			maxSeq = e.Sequence
		}
	}
	return out, maxSeq, nil
}

func (f *fakeEventLog) AppendWithConflictCheck(ctx context.Context, events []EncodedEvent, metadata map[string]string, conflictFilter Filter, lastSeen int64) (AppendResult, error) {
	f.mu.Lock()
	attempt := f.attempt
	f.attempt++
	f.mu.Unlock()

	if f.conflictOn != nil && f.conflictOn(attempt) {
		return AppendResult{Conflicted: true, ConflictCount: 1}, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	conflictTypes := make(map[string]bool)
	for _, c := range conflictFilter.Clauses() {
		conflictTypes[c.EventType] = true
	}
	conflictCount := 0
	for _, e := range f.events {
		if e.Sequence > lastSeen && conflictTypes[e.EventType] {
			conflictCount++
		}
	}
	if conflictCount > 0 {
		return AppendResult{Conflicted: true, ConflictCount: conflictCount}, nil
	}

	seqs := make([]int64, len(events))
	for i, e := range events {
		seq := int64(len(f.events) + 1)
		f.events = append(f.events, EventWithTags{
			StoredEvent: StoredEvent{
				Sequence:  seq,
				EventType: e.Type,
				Payload:   append([]byte(nil), e.Payload...),
				Metadata:  metadata,
			},
		})
		seqs[i] = seq
	}
	return AppendResult{Sequences: seqs}, nil
}

var _ EventLog = (*fakeEventLog)(nil)
