package eventcore

import (
	"github.com/google/uuid"
	"go.jetify.com/typeid"
)

// FactID is a process-unique opaque identifier for a Fact. It need not
// survive restarts (spec §9) — it only has to be unique for the
// lifetime of one command attempt's Compose call.
type FactID string

// newFactID allocates a fresh process-unique FactID, grounded on the
// teacher's internal/dcb event-id scheme (uuid.NewV7 for a
// time-ordered, collision-free identifier).
func newFactID() FactID {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the system's random source is broken;
		// fall back to a V4 rather than panic mid-command.
		id = uuid.New()
	}
	return FactID(id.String())
}

// NewCorrelationID generates a prefixed, sortable identifier suitable
// for a command's metadata "correlation_id" (or "session", "source",
// etc.) entry — a convenience for host programs, not used by the core
// itself. Grounded on the teacher's typeid_helpers.go tag-prefixed id
// scheme.
func NewCorrelationID(prefix string) string {
	tid, err := typeid.WithPrefix(prefix)
	if err != nil {
		// Invalid prefix (non [a-z_] chars, too long): fall back to a
		// TypeID with the prefix "id" rather than fail the caller's request.
		tid, _ = typeid.WithPrefix("id")
	}
	return tid.String()
}
