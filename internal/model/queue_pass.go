package model

import "time"

// QueuePass is a short-lived admission credential.  One live pass exists per
// (ScheduleID, UserID); holding a valid pass is what allows a hold attempt
// through the queue gate.
//
// Fields:
//  Token     – opaque single-use token, unique per issuance.
//  ExpiresAt – instant after which the pass no longer admits.
type QueuePass struct {
	Token     string
	ExpiresAt time.Time
}

// QueueStatus is the wire shape shared by POST /api/queue/enter and
// GET /api/queue/status.  Rank is the 1-based waiting position and drops to
// zero once the user has been admitted; Token stays null until admission.
type QueueStatus struct {
	Rank      int64      `json:"rank"`
	CanEnter  bool       `json:"canEnter"`
	Token     *string    `json:"token"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}
