package testutil

import (
	"io"
	"log/slog"
)

// DefaultSessionID is returned by a FixedIDGenerator created with an empty id.
const DefaultSessionID = "test-session-default"

// FixedIDGenerator returns the same session id every time.
//
// Scenarios use it so repeated runs produce byte-identical traces.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator that always returns id.
//
// The id is typically set in the scenario YAML:
//
//	session_id: "session-horse"
//
// If id is empty, Generate() returns DefaultSessionID.
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = DefaultSessionID
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id. Implements engine.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
