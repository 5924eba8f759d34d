package eventcore

import "context"

// ResultKind tags the outcome of one Handler.Run call (spec §3 Command
// Result).
type ResultKind int

const (
	// Accepted means the events were appended; Events holds them.
	Accepted ResultKind = iota
	// Rejected means Execute returned a business error; nothing was
	// appended.
	Rejected
	// SystemError means a non-business failure occurred: a decode
	// error, a store error, or retry-budget exhaustion.
	SystemError
)

func (k ResultKind) String() string {
	switch k {
	case Accepted:
		return "Accepted"
	case Rejected:
		return "Rejected"
	case SystemError:
		return "SystemError"
	default:
		return "Unknown"
	}
}

// CommandResult is the terminal outcome of a command attempt (spec §3).
type CommandResult[Ev any] struct {
	Kind ResultKind
	// Events holds the events written, only set when Kind == Accepted.
	Events []Ev
	// Err holds a *BusinessError when Kind == Rejected, or a wrapped
	// SystemError-class error when Kind == SystemError. Nil when
	// Kind == Accepted.
	Err error
}

// DefaultMaxAttempts is the documented default retry budget (spec §4.4,
// §9 Open Question: "configurable ... default of 3").
const DefaultMaxAttempts = 3

// Handler binds the five things a command handler needs at
// construction time (spec §4.4): the initial context, the Facts used
// to build it, the business logic (Execute), and the encode/decode
// pair for the events it may write. A Handler is cheap and
// command-scoped — per spec §9, callers typically build a fresh
// Handler per command invocation, capturing command-specific
// identifiers in its Facts' filters.
type Handler[Cmd any, C any, Ev any] struct {
	Initial C
	Facts   []Fact[C]
	// Execute runs business logic against the composed context and
	// either returns the events to append or a business error. Execute
	// must not perform I/O whose result depends on context freshness
	// (spec §5): it should be a pure function of cmd and ctx.
	Execute func(cmd Cmd, ctx C) ([]Ev, error)
	Decode  Decoder[Ev]
	Encode  Encoder[Ev]
	// MaxAttempts bounds the total number of compose+append attempts
	// when appends conflict (3 means at most 2 retries). Zero means
	// DefaultMaxAttempts.
	MaxAttempts int
}

func (h Handler[Cmd, C, Ev]) maxAttempts() int {
	if h.MaxAttempts > 0 {
		return h.MaxAttempts
	}
	return DefaultMaxAttempts
}

// Run executes the state machine described in spec §4.4:
// Loading -> Deciding -> (Rejected | Appending) -> (Accepted | Conflicted -> Loading | Failed).
// Rejected, Accepted, and the Failed case of SystemError are terminal.
func (h Handler[Cmd, C, Ev]) Run(ctx context.Context, log EventLog, cmd Cmd, metadata map[string]string) CommandResult[Ev] {
	decodeAny := func(eventType string, payload []byte) (any, error) {
		return h.Decode(eventType, payload)
	}

	maxAttempts := h.maxAttempts()
	for attempt := 0; ; attempt++ {
		// Loading: compose the context from the current log state.
		composed, maxSeq, union, err := Compose(ctx, log, h.Facts, decodeAny, h.Initial)
		if err != nil {
			return CommandResult[Ev]{Kind: SystemError, Err: err}
		}

		// Deciding: run business logic against the loaded context.
		events, bizErr := h.Execute(cmd, composed)
		if bizErr != nil {
			be, ok := bizErr.(*BusinessError)
			if !ok {
				be = newBusinessError("execute", bizErr.Error())
			}
			return CommandResult[Ev]{Kind: Rejected, Err: be}
		}

		// Appending: encode and append-with-conflict-check.
		encoded := make([]EncodedEvent, len(events))
		for i, e := range events {
			eventType, payload, encErr := h.Encode(e)
			if encErr != nil {
				return CommandResult[Ev]{Kind: SystemError, Err: newCodecError("encode", encErr)}
			}
			encoded[i] = EncodedEvent{Type: eventType, Payload: payload}
		}

		result, err := log.AppendWithConflictCheck(ctx, encoded, metadata, union, maxSeq)
		if err != nil {
			return CommandResult[Ev]{Kind: SystemError, Err: err}
		}

		if !result.Conflicted {
			// Accepted.
			return CommandResult[Ev]{Kind: Accepted, Events: events}
		}

		// Conflicted -> Loading, unless the retry budget is spent.
		if attempt+1 >= maxAttempts {
			return CommandResult[Ev]{
				Kind: SystemError,
				Err:  newStoreError("run", "retry_budget", errMaxRetriesExceeded),
			}
		}
	}
}
