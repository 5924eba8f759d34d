package eventcore

import "context"

// AdminAppendUnchecked is the documented non-command write path (spec
// §4.1/§9): test scaffolding and legacy-event import. It is a thin,
// clearly-named wrapper over EventLog.AppendUnchecked so that call
// sites reaching for the unconditional append are visibly
// administrative rather than something a command handler might reach
// for by habit. Handler.Run never calls this.
func AdminAppendUnchecked[Ev any](ctx context.Context, log EventLog, encode Encoder[Ev], events []Ev, metadata map[string]string) ([]int64, error) {
	encoded := make([]EncodedEvent, len(events))
	for i, e := range events {
		eventType, payload, err := encode(e)
		if err != nil {
			return nil, newCodecError("admin_append_unchecked", err)
		}
		encoded[i] = EncodedEvent{Type: eventType, Payload: payload}
	}
	return log.AppendUnchecked(ctx, encoded, metadata)
}
