package eventcore

import "fmt"

// validateEncodedEvent rejects an event with an empty type, mirroring
// the teacher's validateEvent (internal/dcb/dcb.go): a type name is
// the only thing the core itself ever inspects about an event, so it's
// the only thing it validates.
func validateEncodedEvent(e EncodedEvent, index int) error {
	if e.Type == "" {
		return newValidationError("validate_event", "type", fmt.Sprintf("event[%d]", index),
			fmt.Errorf("event at index %d has empty type", index))
	}
	return nil
}

func validateEncodedEvents(events []EncodedEvent) error {
	for i, e := range events {
		if err := validateEncodedEvent(e, i); err != nil {
			return err
		}
	}
	return nil
}
