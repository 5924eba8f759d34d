package eventcore

import "github.com/jackc/pgx/v5"

// IsolationLevel selects the Postgres transaction isolation level used
// for append operations. Read Committed is sufficient here because the
// conflict check and the insert are one atomic CTE statement (spec
// §4.1) — the isolation level governs ordinary reads/writes around it,
// not the conflict check itself.
type IsolationLevel int

const (
	IsolationLevelReadCommitted IsolationLevel = iota
	IsolationLevelRepeatableRead
	IsolationLevelSerializable
)

func (l IsolationLevel) toPgx() pgx.TxIsoLevel {
	switch l {
	case IsolationLevelRepeatableRead:
		return pgx.RepeatableRead
	case IsolationLevelSerializable:
		return pgx.Serializable
	default:
		return pgx.ReadCommitted
	}
}

// EventLogConfig configures a Postgres-backed EventLog, grounded on the
// teacher's EventStoreConfig/newEventStore default-filling pattern.
type EventLogConfig struct {
	// MaxBatchSize bounds the number of events in a single
	// AppendUnchecked/AppendWithConflictCheck call.
	MaxBatchSize int
	// QueryTimeoutMs bounds QueryWithTags when the caller's context has
	// no deadline of its own.
	QueryTimeoutMs int
	// AppendTimeoutMs bounds append operations when the caller's
	// context has no deadline of its own.
	AppendTimeoutMs int
	// Isolation is the transaction isolation level used for append
	// operations.
	Isolation IsolationLevel
}

// DefaultEventLogConfig returns the configuration the teacher's own
// constructors fall back to: a 1000-event batch cap, 15s query
// timeout, 10s append timeout, Read Committed isolation.
func DefaultEventLogConfig() EventLogConfig {
	return EventLogConfig{
		MaxBatchSize:    1000,
		QueryTimeoutMs:  15000,
		AppendTimeoutMs: 10000,
		Isolation:       IsolationLevelReadCommitted,
	}
}

func (c EventLogConfig) withDefaults() EventLogConfig {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 1000
	}
	if c.QueryTimeoutMs <= 0 {
		c.QueryTimeoutMs = 15000
	}
	if c.AppendTimeoutMs <= 0 {
		c.AppendTimeoutMs = 10000
	}
	return c
}

// Option configures a PostgresEventLog at construction time.
type Option func(*EventLogConfig)

// WithMaxBatchSize overrides the default batch size cap.
func WithMaxBatchSize(n int) Option {
	return func(c *EventLogConfig) { c.MaxBatchSize = n }
}

// WithQueryTimeout overrides the default query timeout, in milliseconds.
func WithQueryTimeout(ms int) Option {
	return func(c *EventLogConfig) { c.QueryTimeoutMs = ms }
}

// WithAppendTimeout overrides the default append timeout, in milliseconds.
func WithAppendTimeout(ms int) Option {
	return func(c *EventLogConfig) { c.AppendTimeoutMs = ms }
}

// WithIsolation overrides the default append isolation level.
func WithIsolation(level IsolationLevel) Option {
	return func(c *EventLogConfig) { c.Isolation = level }
}
