package eventcore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresEventLog is the Postgres-backed EventLog implementation: a
// single "events" table, JSON-path filter evaluation via
// jsonb_path_exists, and conditional append via the three fixed-shape
// statements in sql.go. Grounded on the teacher's eventStore struct
// (pkg/dcb/event_store.go): a thin wrapper around *pgxpool.Pool plus a
// config, constructed via a ping-then-validate factory.
type PostgresEventLog struct {
	pool   *pgxpool.Pool
	config EventLogConfig
}

// NewPostgresEventLog constructs a PostgresEventLog. It pings the pool
// and checks that the events table exists before returning, so
// misconfiguration fails at startup rather than on first query — the
// same discipline as the teacher's NewEventStore.
func NewPostgresEventLog(ctx context.Context, pool *pgxpool.Pool, opts ...Option) (*PostgresEventLog, error) {
	cfg := DefaultEventLogConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		return nil, newStoreError("new_postgres_event_log", "database", fmt.Errorf("unable to connect: %w", err))
	}

	var exists bool
	if err := pool.QueryRow(pingCtx, sqlEventsTableExists).Scan(&exists); err != nil {
		return nil, newStoreError("new_postgres_event_log", "database", fmt.Errorf("unable to validate events table: %w", err))
	}
	if !exists {
		return nil, newStoreError("new_postgres_event_log", "schema", fmt.Errorf(`table "events" does not exist`))
	}

	return &PostgresEventLog{pool: pool, config: cfg}, nil
}

// withTimeout mirrors the teacher's eventStore.withTimeout: respect the
// caller's deadline if it set one, otherwise apply the configured
// default. The derived context is rooted in the caller's, so cancelling
// the caller's context cancels the database call.
func (l *PostgresEventLog) withTimeout(ctx context.Context, defaultMs int) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(defaultMs)*time.Millisecond)
}

func encodeEventsArray(events []EncodedEvent) ([]byte, error) {
	type wireEvent struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	arr := make([]wireEvent, len(events))
	for i, e := range events {
		if !json.Valid(e.Payload) {
			return nil, fmt.Errorf("event %d: payload is not valid JSON", i)
		}
		arr[i] = wireEvent{Type: e.Type, Data: e.Payload}
	}
	return json.Marshal(arr)
}

func encodeMetadata(metadata map[string]string) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return json.Marshal(metadata)
}

func encodeClauses(clauses []TaggedClause) ([]byte, error) {
	wire := make([]WireClause, len(clauses))
	for i, tc := range clauses {
		w := tc.Clause.ToWire()
		w.FactID = string(tc.FactID)
		wire[i] = w
	}
	return json.Marshal(wire)
}

func encodeConflictClauses(f Filter) ([]byte, error) {
	clauses := f.Clauses()
	wire := make([]WireClause, len(clauses))
	for i, c := range clauses {
		wire[i] = c.ToWire()
	}
	return json.Marshal(wire)
}

// AppendUnchecked implements EventLog.
func (l *PostgresEventLog) AppendUnchecked(ctx context.Context, events []EncodedEvent, metadata map[string]string) ([]int64, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if len(events) > l.config.MaxBatchSize {
		return nil, newValidationError("append_unchecked", "events", fmt.Sprintf("count:%d", len(events)),
			fmt.Errorf("batch size %d exceeds maximum %d", len(events), l.config.MaxBatchSize))
	}
	if err := validateEncodedEvents(events); err != nil {
		return nil, err
	}

	eventsJSON, err := encodeEventsArray(events)
	if err != nil {
		log.Printf("append_unchecked: failed to encode %d event(s): %v", len(events), err)
		return nil, newCodecError("append_unchecked", err)
	}
	metaJSON, err := encodeMetadata(metadata)
	if err != nil {
		log.Printf("append_unchecked: failed to encode metadata: %v", err)
		return nil, newCodecError("append_unchecked", err)
	}

	appendCtx, cancel := l.withTimeout(ctx, l.config.AppendTimeoutMs)
	defer cancel()

	log.Printf("append_unchecked: appending %d event(s)", len(events))

	rows, err := l.pool.Query(appendCtx, sqlAppendUnchecked, eventsJSON, metaJSON)
	if err != nil {
		log.Printf("append_unchecked: query failed: %v", err)
		return nil, newStoreError("append_unchecked", "database", err)
	}
	defer rows.Close()

	var sequences []int64
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			log.Printf("append_unchecked: failed to scan sequence number: %v", err)
			return nil, newStoreError("append_unchecked", "database", err)
		}
		sequences = append(sequences, seq)
	}
	if err := rows.Err(); err != nil {
		log.Printf("append_unchecked: row iteration failed: %v", err)
		return nil, newStoreError("append_unchecked", "database", err)
	}
	if len(sequences) != len(events) {
		return nil, newStoreError("append_unchecked", "database",
			fmt.Errorf("inserted %d rows for %d requested events", len(sequences), len(events)))
	}
	log.Printf("append_unchecked: appended %d event(s), sequences: %v", len(sequences), sequences)
	return sequences, nil
}

// QueryWithTags implements EventLog.
func (l *PostgresEventLog) QueryWithTags(ctx context.Context, clauses []TaggedClause) ([]EventWithTags, int64, error) {
	if len(clauses) == 0 {
		// spec §8 boundary behaviour: empty filter returns zero events
		// and max_seq 0, without a round trip.
		return nil, 0, nil
	}

	clausesJSON, err := encodeClauses(clauses)
	if err != nil {
		log.Printf("query_with_tags: failed to encode %d clause(s): %v", len(clauses), err)
		return nil, 0, newCodecError("query_with_tags", err)
	}

	queryCtx, cancel := l.withTimeout(ctx, l.config.QueryTimeoutMs)
	defer cancel()

	rows, err := l.pool.Query(queryCtx, sqlQueryWithTags, clausesJSON)
	if err != nil {
		log.Printf("query_with_tags: query failed for %d clause(s): %v", len(clauses), err)
		return nil, 0, newStoreError("query_with_tags", "database", err)
	}
	defer rows.Close()

	var events []EventWithTags
	var maxSeq int64
	for rows.Next() {
		var (
			seq       int64
			occurred  time.Time
			eventType string
			payload   json.RawMessage
			metaJSON  json.RawMessage
			factIDs   []string
		)
		if err := rows.Scan(&seq, &occurred, &eventType, &payload, &metaJSON, &factIDs); err != nil {
			log.Printf("query_with_tags: failed to scan row: %v", err)
			return nil, 0, newStoreError("query_with_tags", "database", err)
		}
		var meta map[string]string
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			log.Printf("query_with_tags: failed to unmarshal metadata for event %d: %v", seq, err)
			return nil, 0, newCodecError("query_with_tags", err)
		}
		ids := make([]FactID, len(factIDs))
		for i, id := range factIDs {
			ids[i] = FactID(id)
		}
		events = append(events, EventWithTags{
			StoredEvent: StoredEvent{
				Sequence:   seq,
				OccurredAt: occurred,
				EventType:  eventType,
				Payload:    payload,
				Metadata:   meta,
			},
			FactIDs: ids,
		})
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	if err := rows.Err(); err != nil {
		log.Printf("query_with_tags: row iteration failed: %v", err)
		return nil, 0, newStoreError("query_with_tags", "database", err)
	}
	log.Printf("query_with_tags: matched %d event(s), max_seq=%d", len(events), maxSeq)
	return events, maxSeq, nil
}

// AppendWithConflictCheck implements EventLog.
func (l *PostgresEventLog) AppendWithConflictCheck(ctx context.Context, events []EncodedEvent, metadata map[string]string, conflictFilter Filter, lastSeen int64) (AppendResult, error) {
	if len(events) > l.config.MaxBatchSize {
		return AppendResult{}, newValidationError("append_with_conflict_check", "events", fmt.Sprintf("count:%d", len(events)),
			fmt.Errorf("batch size %d exceeds maximum %d", len(events), l.config.MaxBatchSize))
	}
	if err := validateEncodedEvents(events); err != nil {
		return AppendResult{}, err
	}

	eventsJSON, err := encodeEventsArray(events)
	if err != nil {
		log.Printf("append_with_conflict_check: failed to encode %d event(s): %v", len(events), err)
		return AppendResult{}, newCodecError("append_with_conflict_check", err)
	}
	metaJSON, err := encodeMetadata(metadata)
	if err != nil {
		log.Printf("append_with_conflict_check: failed to encode metadata: %v", err)
		return AppendResult{}, newCodecError("append_with_conflict_check", err)
	}
	clausesJSON, err := encodeConflictClauses(conflictFilter)
	if err != nil {
		log.Printf("append_with_conflict_check: failed to encode conflict filter: %v", err)
		return AppendResult{}, newCodecError("append_with_conflict_check", err)
	}

	appendCtx, cancel := l.withTimeout(ctx, l.config.AppendTimeoutMs)
	defer cancel()

	log.Printf("append_with_conflict_check: appending %d event(s), last_seen=%d", len(events), lastSeen)

	// Run the conflict-check-and-insert under the configured isolation
	// level. The statement itself is already atomic (the insert's own
	// WHERE predicate gates on the conflict count, spec §4.1), but the
	// surrounding transaction's isolation level still governs what
	// concurrent appends this one can observe while it runs.
	tx, err := l.pool.BeginTx(appendCtx, pgx.TxOptions{IsoLevel: l.config.Isolation.toPgx()})
	if err != nil {
		log.Printf("append_with_conflict_check: failed to begin transaction: %v", err)
		return AppendResult{}, newStoreError("append_with_conflict_check", "database", err)
	}
	defer tx.Rollback(appendCtx)

	var (
		status        string
		conflictCount int
		sequences     []int64
	)
	err = tx.QueryRow(appendCtx, sqlAppendWithConflictCheck, eventsJSON, metaJSON, clausesJSON, lastSeen).
		Scan(&status, &conflictCount, &sequences)
	if err != nil {
		log.Printf("append_with_conflict_check: query failed: %v", err)
		return AppendResult{}, newStoreError("append_with_conflict_check", "database", err)
	}
	if err := tx.Commit(appendCtx); err != nil {
		log.Printf("append_with_conflict_check: commit failed: %v", err)
		return AppendResult{}, newStoreError("append_with_conflict_check", "database", err)
	}

	if status == "conflict" {
		log.Printf("append_with_conflict_check: conflict detected, %d conflicting event(s) above last_seen=%d", conflictCount, lastSeen)
		return AppendResult{Conflicted: true, ConflictCount: conflictCount}, nil
	}
	if len(sequences) != len(events) {
		return AppendResult{}, newStoreError("append_with_conflict_check", "database",
			fmt.Errorf("inserted %d rows for %d requested events", len(sequences), len(events)))
	}
	log.Printf("append_with_conflict_check: appended %d event(s), sequences: %v", len(sequences), sequences)
	return AppendResult{Sequences: sequences}, nil
}

var _ EventLog = (*PostgresEventLog)(nil)
