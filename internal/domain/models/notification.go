package models

import "time"

// Notification is a persisted per-user alert produced by the schedulers and
// workflow transitions. Delivery channels beyond the in-app record (webhooks)
// are handled separately; this row is the durable copy.
type Notification struct {
	ID          string     `json:"id"`
	RecipientID string     `json:"recipient_id"`
	Kind        string     `json:"kind"`
	SubjectID   string     `json:"subject_id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	IsRead      bool       `json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
