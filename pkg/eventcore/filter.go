package eventcore

import (
	"fmt"
	"strings"
)

// AttrPredicate is one condition on an event's JSON payload, rendered
// as a fragment of a jsonpath expression plus its bound parameter.
type AttrPredicate struct {
	// path is the jsonpath accessor, e.g. "$.field".
	path string
	// param is not set by the Attr* constructors; newClause names each
	// bind variable by the predicate's position ("a", "b", ...).
	param string
	value any
}

// AttrString matches payload field at the given top-level key against
// a string value.
func AttrString(field, value string) AttrPredicate {
	return AttrPredicate{path: "$." + field, value: value}
}

// AttrInt matches payload field at the given top-level key against an
// integer value.
func AttrInt(field string, value int64) AttrPredicate {
	return AttrPredicate{path: "$." + field, value: value}
}

// AttrBool matches payload field at the given top-level key against a
// boolean value. Supplemental over spec.md's attr_string/attr_int: a
// natural extension for the common case of boolean payload fields.
func AttrBool(field string, value bool) AttrPredicate {
	return AttrPredicate{path: "$." + field, value: value}
}

// Clause is one (event_type, payload_predicate) pair: an event matches
// iff its type equals EventType and its payload satisfies the compiled
// jsonpath expression under Params.
type Clause struct {
	EventType string
	JSONPath  string
	Params    map[string]any
}

// clauseParamName letters: "a".."z" for the first 26 predicates, then
// "p26", "p27", ... (the predicate's index) for any beyond that.
func clauseParamName(i int) string {
	if i < 26 {
		return string(rune('a' + i))
	}
	return fmt.Sprintf("p%d", i)
}

func newClause(eventType string, preds []AttrPredicate) Clause {
	if len(preds) == 0 {
		return Clause{EventType: eventType, JSONPath: "$", Params: map[string]any{}}
	}
	parts := make([]string, len(preds))
	params := make(map[string]any, len(preds))
	for i, p := range preds {
		name := clauseParamName(i)
		parts[i] = fmt.Sprintf("%s == $%s", p.path, name)
		params[name] = p.value
	}
	return Clause{
		EventType: eventType,
		JSONPath:  "$?(" + strings.Join(parts, " && ") + ")",
		Params:    params,
	}
}

// ToWire renders the clause as the documented JSON shape:
// {"event_type": ..., "filter": "<jsonpath>", "params": {...}}, with
// "fact_id" added by TagWithFact when the clause is sent to
// QueryWithTags.
func (c Clause) ToWire() WireClause {
	return WireClause{
		EventType: c.EventType,
		Filter:    c.JSONPath,
		Params:    c.Params,
	}
}

// WireClause is the JSON-serializable form of a Clause, matching
// spec.md §6's filter clause shape exactly.
type WireClause struct {
	EventType string         `json:"event_type"`
	Filter    string         `json:"filter"`
	Params    map[string]any `json:"params"`
	FactID    string         `json:"fact_id,omitempty"`
}

// Filter is a set of clauses. An event matches the filter iff it
// matches at least one clause (disjunction); the empty filter matches
// nothing.
type Filter struct {
	clauses []Clause
}

// Empty returns a Filter that matches nothing.
func Empty() Filter {
	return Filter{}
}

// ForType adds one clause matching events of the given type whose
// payload satisfies every predicate (conjoined). Multiple calls to
// ForType — same or different types — add disjoint clauses; the
// overall filter matches the union of what each clause matches.
func ForType(eventType string, preds ...AttrPredicate) Filter {
	return Filter{clauses: []Clause{newClause(eventType, preds)}}
}

// Or returns a Filter whose clauses are the concatenation of f's and
// other's clauses (disjunction of the two).
func (f Filter) Or(other Filter) Filter {
	out := make([]Clause, 0, len(f.clauses)+len(other.clauses))
	out = append(out, f.clauses...)
	out = append(out, other.clauses...)
	return Filter{clauses: out}
}

// Clauses returns the filter's clauses. Callers should treat the
// result as read-only.
func (f Filter) Clauses() []Clause {
	return f.clauses
}

// IsEmpty reports whether the filter has no clauses (matches nothing).
func (f Filter) IsEmpty() bool {
	return len(f.clauses) == 0
}

// Union concatenates the clauses of every filter given, without
// de-duplication — spec.md §4.2: "Duplicate clauses are not
// de-duplicated." Used by the Context Composer to build one query from
// many Facts' filters; per-event Fact membership is recovered from the
// tag array QueryWithTags returns, not from clause identity.
func Union(filters ...Filter) Filter {
	var out []Clause
	for _, f := range filters {
		out = append(out, f.clauses...)
	}
	return Filter{clauses: out}
}

// TagWithFact renders every clause of f as a WireClause annotated with
// factID, producing the TaggedClause list QueryWithTags expects.
func TagWithFact(f Filter, factID FactID) []TaggedClause {
	tagged := make([]TaggedClause, len(f.clauses))
	for i, c := range f.clauses {
		tagged[i] = TaggedClause{Clause: c, FactID: factID}
	}
	return tagged
}
