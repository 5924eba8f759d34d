package eventcore

// The three fixed-shape statements spec.md §4.1/§6 describes. A filter
// array is passed as a single jsonb parameter (an array of
// {"event_type","filter","params","fact_id"} objects: $1 in
// sqlQueryWithTags, $3 in sqlAppendWithConflictCheck). An event batch
// is passed as a single jsonb array of {"type","data"} objects ($1);
// the elements carry no metadata of their own — metadata is a separate
// jsonb parameter ($2) that every inserted row shares.

// sqlAppendUnchecked inserts one row per element of the events array,
// stamping every row with the caller's shared metadata ($2), and
// returns the assigned sequence numbers in insertion order.
const sqlAppendUnchecked = `
INSERT INTO events (occurred_at, event_type, payload, metadata)
SELECT now(), elem->>'type', (elem->'data')::jsonb, $2::jsonb
FROM jsonb_array_elements($1::jsonb) AS elem
RETURNING sequence_number
`

// sqlQueryWithTags is one statement with two CTEs and an aggregating
// final SELECT: the first CTE unrolls the filter array, the second
// selects the distinct matching (event, fact_id) pairs, and the final
// SELECT groups them into one row per event with its tag array (the set of fact_ids whose clause the event
// satisfied) without requiring N separate queries.
const sqlQueryWithTags = `
WITH clauses AS (
    SELECT
        elem->>'event_type'  AS event_type,
        (elem->>'filter')::jsonpath AS filter,
        COALESCE(elem->'params', '{}'::jsonb) AS params,
        elem->>'fact_id' AS fact_id
    FROM jsonb_array_elements($1::jsonb) AS elem
),
matches AS (
    SELECT DISTINCT e.sequence_number, e.occurred_at, e.event_type, e.payload, e.metadata, c.fact_id
    FROM events e
    JOIN clauses c
      ON e.event_type = c.event_type
     AND jsonb_path_exists(e.payload, c.filter, c.params)
)
SELECT
    m.sequence_number,
    m.occurred_at,
    m.event_type,
    m.payload,
    m.metadata,
    COALESCE(array_agg(DISTINCT m.fact_id) FILTER (WHERE m.fact_id IS NOT NULL), ARRAY[]::text[]) AS fact_ids
FROM matches m
GROUP BY m.sequence_number, m.occurred_at, m.event_type, m.payload, m.metadata
ORDER BY m.sequence_number ASC
`

// sqlAppendWithConflictCheck is the three-CTE conditional-append
// statement: unroll the conflict filter's clauses ($3), count matching
// events above last_seen ($4), and insert the new batch ($1, stamped
// with the shared metadata $2) only when that count is zero — a WHERE
// predicate on the insert's source, never a post-hoc rollback (spec
// §4.1).
const sqlAppendWithConflictCheck = `
WITH clauses AS (
    SELECT
        elem->>'event_type' AS event_type,
        (elem->>'filter')::jsonpath AS filter,
        COALESCE(elem->'params', '{}'::jsonb) AS params
    FROM jsonb_array_elements($3::jsonb) AS elem
),
conflict AS (
    SELECT count(*) AS conflict_count
    FROM events e
    JOIN clauses c
      ON e.event_type = c.event_type
     AND jsonb_path_exists(e.payload, c.filter, c.params)
    WHERE e.sequence_number > $4::bigint
),
ins AS (
    INSERT INTO events (occurred_at, event_type, payload, metadata)
    SELECT now(), elem->>'type', (elem->'data')::jsonb, $2::jsonb
    FROM jsonb_array_elements($1::jsonb) AS elem, conflict
    WHERE conflict.conflict_count = 0
    RETURNING sequence_number
)
SELECT
    CASE WHEN (SELECT conflict_count FROM conflict) = 0 THEN 'success' ELSE 'conflict' END AS status,
    (SELECT conflict_count FROM conflict) AS conflict_count,
    COALESCE((SELECT array_agg(sequence_number ORDER BY sequence_number) FROM ins), ARRAY[]::bigint[]) AS sequences
`

// sqlEventsTableExists is used at construction time to fail fast with a
// clear error rather than surfacing a confusing SQL error on first use,
// the same discipline as the teacher's validateEventsTableExists.
const sqlEventsTableExists = `
SELECT EXISTS (
    SELECT 1 FROM information_schema.tables
    WHERE table_schema = 'public' AND table_name = 'events'
)
`
