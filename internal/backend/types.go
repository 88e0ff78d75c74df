// Package backend defines the data model and RPC surface of the Backend
// Store — the sole synchronization point between otherwise isolated
// controller and worker processes. It is deliberately the only package in
// this module with shared mutable state; every other component reaches it
// only through the Store interface.
package backend

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when an operation's target key is absent.
// Callers treat this as "no data yet" — a transient, expected condition —
// never as a fatal error. Check with errors.Is.
var ErrNotFound = errors.New("backend: not found")

// TestId, ScenarioId, UserManagerId, UserId, ResultId and EventId are
// opaque strings, unique within a test.
type (
	TestId        string
	ScenarioId    string
	UserManagerId string
	UserId        string
	ResultId      string
	EventId       string
)

// Value carries an arbitrary, serializable scenario output or exception
// across a process boundary. It is the Go realization of the
// "Null | Json(string) | Structured(bytes)" sum type: scenario authors
// return ordinary Go values, and the user runner lifts them into a Value
// before they cross into the backend.
type Value struct {
	null bool
	raw  json.RawMessage
}

// NullValue represents the absence of an output (e.g. a scenario function
// returning nothing).
func NullValue() Value {
	return Value{null: true}
}

// JSONValue marshals v and wraps the result. Marshal failure is reported
// by MarshalJSON at encode time rather than here, keeping JSONValue
// infallible to call at a result-reporting call site.
func JSONValue(v any) Value {
	raw, err := json.Marshal(v)
	if err != nil {
		return Value{raw: json.RawMessage(fmt.Sprintf(`{"marshalError":%q}`, err.Error()))}
	}
	return Value{raw: raw}
}

// StructuredValue wraps already-encoded bytes (e.g. a scenario that
// produces its own JSON or protobuf-as-bytes payload) without re-marshaling.
func StructuredValue(raw []byte) Value {
	if len(raw) == 0 {
		return NullValue()
	}
	return Value{raw: json.RawMessage(raw)}
}

// IsNull reports whether the value carries no output.
func (v Value) IsNull() bool {
	return v.null || len(v.raw) == 0
}

// Decode unmarshals the carried JSON into dst. Calling Decode on a null
// Value is a no-op.
func (v Value) Decode(dst any) error {
	if v.IsNull() {
		return nil
	}
	return json.Unmarshal(v.raw, dst)
}

// Raw returns the underlying JSON bytes, or nil for a null Value.
func (v Value) Raw() json.RawMessage {
	if v.IsNull() {
		return nil
	}
	return v.raw
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsNull() {
		return []byte("null"), nil
	}
	return v.raw, nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = NullValue()
		return nil
	}
	v.null = false
	v.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Result is produced by a single user runner invocation. It is immutable
// once created and consumed exactly once per successful fetch from the
// per-scenario queue.
type Result struct {
	ID        ResultId `json:"id"`
	Output    Value    `json:"output"`
	Exception *string  `json:"exception,omitempty"`
	Logs      string   `json:"logs"`
	Timestamp int64    `json:"timestamp"`
	TimeTaken float64  `json:"timeTaken"`
}

// Failed reports the Result-level invariant: exception != nil implies
// the result counts as failed.
func (r Result) Failed() bool {
	return r.Exception != nil
}

// ScenarioResult is created once by the Scenario Runtime when the load
// model completes or throws. succeeded + failed equals the number of
// results collected by the scenario.
type ScenarioResult struct {
	ID        ScenarioId `json:"id"`
	Output    Value      `json:"output"`
	Exception *string    `json:"exception,omitempty"`
	Logs      string     `json:"logs"`
	Timestamp int64      `json:"timestamp"`
	TimeTaken float64    `json:"timeTaken"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
}

// UserEvent kinds.
const (
	EventStartUsers = "START_USERS"
	EventStopUsers  = "STOP_USERS"
)

// UserEvent fans out from a scenario to the user managers hosting its
// users. Events are consumed by kind; reading drains the queue for that
// kind.
type UserEvent struct {
	Kind    string                 `json:"kind"`
	Payload map[string]interface{} `json:"payload"`
}

// UserEventIDs extracts the "IDs" payload field shared by START_USERS and
// STOP_USERS events.
func (e UserEvent) UserEventIDs() []UserId {
	raw, ok := e.Payload["IDs"]
	if !ok {
		return nil
	}

	switch v := raw.(type) {
	case []UserId:
		return v
	case []string:
		out := make([]UserId, len(v))
		for i, s := range v {
			out[i] = UserId(s)
		}
		return out
	case []interface{}:
		out := make([]UserId, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, UserId(s))
			}
		}
		return out
	default:
		return nil
	}
}

// TestEvent kinds.
const (
	TestEventTestStarted      = "TEST_STARTED"
	TestEventTestErrored      = "TEST_ERRORED"
	TestEventTestFinished     = "TEST_FINISHED"
	TestEventScenarioStarted  = "SCENARIO_STARTED"
	TestEventScenarioFinished = "SCENARIO_FINISHED"
	TestEventScenarioMetric   = "SCENARIO_METRIC"
)

// TestEvent fans in from scenarios to the controller. Payload is either a
// status payload (Scenario, ScenarioID, Message, Context) or a metric
// payload (Scenario, Metrics), never both.
type TestEvent struct {
	Kind    string      `json:"kind"`
	Payload EventPayload `json:"payload"`
}

// EventPayload is the union of the two TestEvent payload shapes. Exactly
// one of the status fields or Metrics is populated for any given event.
type EventPayload struct {
	Scenario   string                 `json:"scenario,omitempty"`
	ScenarioID ScenarioId             `json:"scenarioId,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`

	Metrics map[string]*string `json:"metrics,omitempty"`
}
