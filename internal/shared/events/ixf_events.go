package events

// Event types published on the bus
const (
	ImportCompleted    = "ixf.import.completed"
	NotificationQueued = "ixf.notification.queued"
	RollbackCompleted  = "ixf.rollback.completed"
)

// ImportCompletedEvent is published after an import run committed
type ImportCompletedEvent struct {
	BaseEvent
	RunID       string
	LANID       int64
	ImportLogID int64
	Applied     int
	Staged      int
	Resolved    int
	Skipped     int
}

// NewImportCompletedEvent creates an import completion event
func NewImportCompletedEvent(runID string, lanID, logID int64, applied, staged, resolved, skipped int) *ImportCompletedEvent {
	return &ImportCompletedEvent{
		BaseEvent: NewBaseEvent(ImportCompleted, map[string]any{
			"run_id": runID,
			"lan_id": lanID,
		}),
		RunID:       runID,
		LANID:       lanID,
		ImportLogID: logID,
		Applied:     applied,
		Staged:      staged,
		Resolved:    resolved,
		Skipped:     skipped,
	}
}

// NotificationQueuedEvent is published for every ticket or email written to the outbox
type NotificationQueuedEvent struct {
	BaseEvent
	OutboxID   int64
	Kind       string
	Subject    string
	Recipients []string
}

// NewNotificationQueuedEvent creates a notification event
func NewNotificationQueuedEvent(outboxID int64, kind, subject string, recipients []string) *NotificationQueuedEvent {
	return &NotificationQueuedEvent{
		BaseEvent:  NewBaseEvent(NotificationQueued, map[string]any{"kind": kind}),
		OutboxID:   outboxID,
		Kind:       kind,
		Subject:    subject,
		Recipients: recipients,
	}
}

// RollbackCompletedEvent is published after an import log was rolled back
type RollbackCompletedEvent struct {
	BaseEvent
	ImportLogID int64
	Reverted    int
	Skipped     int
}

// NewRollbackCompletedEvent creates a rollback completion event
func NewRollbackCompletedEvent(logID int64, reverted, skipped int) *RollbackCompletedEvent {
	return &RollbackCompletedEvent{
		BaseEvent:   NewBaseEvent(RollbackCompleted, map[string]any{"import_log_id": logID}),
		ImportLogID: logID,
		Reverted:    reverted,
		Skipped:     skipped,
	}
}
