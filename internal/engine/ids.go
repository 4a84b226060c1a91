package engine

import "github.com/google/uuid"

// IDGenerator names sessions. Ids label log records, spans and journal rows,
// so a generator shared across sessions must not repeat itself.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator is the default generator. UUIDv7 ids sort by creation time.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
