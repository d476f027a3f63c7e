package types

import (
	"encoding/json"
	"time"
)

// ContentSnapshot is a versioned local copy of an artifact's content.
type ContentSnapshot struct {
	ArtifactID  ArtifactID      `json:"artifact_id"`
	Title       string          `json:"title"`
	Content     json.RawMessage `json:"content"`
	Version     int64           `json:"version"`
	Timestamp   time.Time       `json:"timestamp"`
	PendingSync bool            `json:"pending_sync"`
	OwnerID     string          `json:"owner_id"`
}

type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusPending SyncStatus = "pending"
	SyncStatusError   SyncStatus = "error"
	SyncStatusOffline SyncStatus = "offline"
)

// SyncState is held in memory only.
type SyncState struct {
	Status       SyncStatus `json:"status"`
	LastSyncTime time.Time  `json:"last_sync_time,omitempty"`
	Error        string     `json:"error,omitempty"`
}
