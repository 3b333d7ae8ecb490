// Package journal implements the session journal (spec 4.K): an
// append-only log of message records, keyed by {role, timestamp} (or
// {role, toolCallId} for tool results), that reconstructs the message
// list in insertion order on read. The journal is owned by a single
// writer task (spec 5); external readers read the file at rest.
package journal

import (
	"github.com/loomrun/coreagent/pkg/models"
)

// Store is the session journal's append-only contract. Implementations
// must never silently drop a record: a malformed record is a reported
// error, not a skip, except for the narrow crash-recovery case of a
// truncated final line (see jsonlStore.ReadAll).
type Store interface {
	// Append writes one message record, write-through (spec 4.K: fsync
	// on append is recommended but not required).
	Append(m models.Message) error

	// ReadAll reconstructs the full message list in insertion order.
	ReadAll() (models.MessageList, error)

	// Close releases the store's underlying resources.
	Close() error
}
