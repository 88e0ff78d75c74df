// Package testcontext encodes the arbitrary JSON "context" object that
// flows from the test runner down through scenario, user and work-item
// invocations as a single opaque string, so it can ride along on command
// lines and RPC payloads without its own transport.
package testcontext

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Encode serializes ctx to JSON and base64-encodes the result, producing
// the flat string passed via --encoded-context to worker processes and
// stored alongside scenario/user invocations.
func Encode(ctx map[string]interface{}) (string, error) {
	if ctx == nil {
		ctx = map[string]interface{}{}
	}

	raw, err := json.Marshal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to marshal context: %w", err)
	}

	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decode reverses Encode. An empty string decodes to an empty, non-nil map.
func Decode(encoded string) (map[string]interface{}, error) {
	if encoded == "" {
		return map[string]interface{}{}, nil
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to base64-decode context: %w", err)
	}

	var ctx map[string]interface{}
	if err := json.Unmarshal(raw, &ctx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context: %w", err)
	}

	if ctx == nil {
		ctx = map[string]interface{}{}
	}

	return ctx, nil
}

// Merge returns a new map holding base's entries overridden by override's.
// Neither input is mutated. This is the Go analogue of dict merging used
// when combining a scenario's declared context with per-invocation
// overrides before encoding it for a child process.
func Merge(base, override map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(override))

	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}

	return merged
}
