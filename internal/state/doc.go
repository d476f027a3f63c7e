// Package state provides local storage implementations: a sqlite-backed
// snapshot buffer and filesystem-backed conversation, message and document
// stores.
package state

import "github.com/user/inkpilot/internal/types"

// Compile-time interface compliance checks.
var _ types.SnapshotStore = (*SnapshotStore)(nil)
var _ types.ConversationStore = (*ConversationStore)(nil)
var _ types.MessageLog = (*MessageLog)(nil)
var _ types.DocumentStore = (*DocumentStore)(nil)
