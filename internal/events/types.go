// Package events is the in-process pub/sub bus of the panel.
// Command results (task rows queued, resources changed) flow through the hub
// to websocket clients and metrics.
package events

import "time"

// EventType identifies the category of event.
type EventType string

const (
	// Task rows inserted for the config cron
	EventTaskQueued EventType = "task.queued"

	// Resource changes
	EventDomainChanged    EventType = "domain.changed"
	EventIPPortChanged    EventType = "ipport.changed"
	EventPHPConfigChanged EventType = "phpconfig.changed"
	EventCustomerChanged  EventType = "customer.changed"
	EventAdminChanged     EventType = "admin.changed"
	EventSettingsReloaded EventType = "settings.reloaded"
	EventSessionsPruned   EventType = "sessions.pruned"
)

// Event is the core message passed through the event bus.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // user or component that caused it
	Data      any       `json:"data"`
}

// TaskData is the payload for EventTaskQueued.
type TaskData struct {
	ID   int64  `json:"id"`
	Type int    `json:"type"`
	Name string `json:"name"`
}

// ChangeData is the payload for resource change events.
type ChangeData struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Action string `json:"action"` // "add", "update", "delete"
}
