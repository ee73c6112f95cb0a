package core

import (
	"encoding/json"
	"time"
)

const (
	EntityTransaction EntityType = "transaction"
	EntityBudget      EntityType = "budget"
	EntityCategory    EntityType = "category"
	EntitySettings    EntityType = "settings"

	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"

	StatusIdle    SyncStatus = "idle"
	StatusSyncing SyncStatus = "syncing"
	StatusSuccess SyncStatus = "success"
	StatusError   SyncStatus = "error"
	StatusOffline SyncStatus = "offline"
)

type (
	EntityType string
	Operation  string
	SyncStatus string

	// PendingChange is a local mutation awaiting remote application. ID is the
	// id of the target entity; at most one change exists per (EntityType, ID).
	PendingChange struct {
		ID         string          `json:"id"`
		EntityType EntityType      `json:"entityType"`
		Operation  Operation       `json:"operation"`
		Payload    json.RawMessage `json:"payload,omitempty"`
		EnqueuedAt time.Time       `json:"enqueuedAt"`
	}

	// QueuedChange is a PendingChange with its queue position. Seq grows
	// monotonically and is never reused, even after the queue empties.
	QueuedChange struct {
		PendingChange
		Seq uint64 `json:"-"`
	}

	// SyncState is published to subscribers; it is never persisted.
	SyncState struct {
		Status             SyncStatus `json:"status"`
		LastSyncTimestamp  *time.Time `json:"lastSyncTimestamp,omitempty"`
		PendingChangeCount int        `json:"pendingChangeCount"`
		LastError          string     `json:"lastError,omitempty"`
		IsNetworkReachable bool       `json:"isNetworkReachable"`
	}
)

// Key identifies the entity a change targets.
func (c PendingChange) Key() string {
	return string(c.EntityType) + ":" + c.ID
}

// NewChange builds a change for entity id, marshalling payload when present.
func NewChange(entity EntityType, op Operation, id string, payload any) (PendingChange, error) {
	change := PendingChange{
		ID:         id,
		EntityType: entity,
		Operation:  op,
		EnqueuedAt: time.Now().UTC(),
	}
	if payload != nil && op != OpDelete {
		data, err := json.Marshal(payload)
		if err != nil {
			return PendingChange{}, err
		}
		change.Payload = data
	}
	return change, nil
}

// RemoteCredentials address a hosted project: its endpoint URL and access key.
type RemoteCredentials struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// IsZero reports whether no credentials are set.
func (c RemoteCredentials) IsZero() bool {
	return c.URL == "" && c.Key == ""
}
