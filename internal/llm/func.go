package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// ClientFunc adapts a plain function to Client.
type ClientFunc func(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error)

func (f ClientFunc) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error) {
	return f(ctx, system, user, schemaName, schema)
}

var ErrNotConfigured = errors.New("completion service not configured")

// Unconfigured is used when no API key is set. Classification fails with an
// external service error and COA ingestion falls back to regex extraction.
type Unconfigured struct{}

func (Unconfigured) GenerateJSON(context.Context, string, string, string, map[string]any) (json.RawMessage, error) {
	return nil, ErrNotConfigured
}
