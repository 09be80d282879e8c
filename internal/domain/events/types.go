package events

// EventType defines the type of event in the system
type EventType string

const (
	// Expiry Alert Events
	Alert30Days   EventType = "expiry.alert_30d"
	Alert15Days   EventType = "expiry.alert_15d"
	Alert7Days    EventType = "expiry.alert_7d"
	AlertExpired  EventType = "expiry.expired"
	ExpiryRenewed EventType = "expiry.renewed"

	// Workflow Events
	StepAssigned      EventType = "workflow.step_assigned"
	InstanceOverdue   EventType = "workflow.instance_overdue"
	InstanceApproved  EventType = "workflow.instance_approved"
	InstanceRejected  EventType = "workflow.instance_rejected"
	InstanceCancelled EventType = "workflow.instance_cancelled"

	// Document Events
	DocumentDeleted  EventType = "document.deleted"
	DocumentArchived EventType = "document.archived"
	VersionCreated   EventType = "document.version_created"
)

// String returns the string representation of the event type
func (e EventType) String() string {
	return string(e)
}

// NotificationEvent is the abstract handoff payload the engine emits to the
// external delivery collaborator. The engine decides that and to whom; the
// delivery channel (email/SMS/push) stays outside.
type NotificationEvent struct {
	Kind        EventType              `json:"kind"`
	SubjectID   string                 `json:"subject_id"`
	RecipientID string                 `json:"recipient_id"`
	Title       string                 `json:"title"`
	Body        string                 `json:"body"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}
