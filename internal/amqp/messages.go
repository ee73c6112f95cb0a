package amqp

import (
	"encoding/json"
	"time"

	"fintrack/internal/core"
)

// SyncStateEvent is published whenever an installation's sync state changes.
type SyncStateEvent struct {
	InstallationID     string          `json:"installation_id"`
	Status             core.SyncStatus `json:"status"`
	PendingChangeCount int             `json:"pending_change_count"`
	LastError          string          `json:"last_error,omitempty"`
	LastSync           *time.Time      `json:"last_sync,omitempty"`
	NetworkReachable   bool            `json:"network_reachable"`
	Timestamp          time.Time       `json:"timestamp"`
}

// NewSyncStateEvent captures state for installationID at the current time.
func NewSyncStateEvent(installationID string, state core.SyncState) *SyncStateEvent {
	return &SyncStateEvent{
		InstallationID:     installationID,
		Status:             state.Status,
		PendingChangeCount: state.PendingChangeCount,
		LastError:          state.LastError,
		LastSync:           state.LastSyncTimestamp,
		NetworkReachable:   state.IsNetworkReachable,
		Timestamp:          time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (m *SyncStateEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncStateEventFromJSON decodes an event
func SyncStateEventFromJSON(data []byte) (*SyncStateEvent, error) {
	var msg SyncStateEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
