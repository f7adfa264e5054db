package model

import (
	"strconv"
	"time"
)

// Outbox status values.  PENDING rows are picked up by the dispatcher;
// PUBLISHED rows have been handed to the broker; FAILED rows exhausted their
// retry budget and need operator attention.
const (
	OutboxPending   = "PENDING"
	OutboxPublished = "PUBLISHED"
	OutboxFailed    = "FAILED"
)

// ConfirmTopic is the broker queue carrying confirm handoff events.
const ConfirmTopic = "ticket.confirm.requested.v1"

// OutboxEvent is a durable record of a confirmed reservation awaiting
// delivery to settlement.  It is written in the same transaction as the
// seat's CONFIRMED transition, so a confirmed seat can never exist without
// its handoff record.
//
// Fields:
//  EventID     – generated identifier, also the consumer dedup key.
//  Topic       – broker destination.
//  EventKey    – partitioning key, "scheduleId:seatNo".
//  Payload     – JSON-encoded ConfirmRequested.
//  Status      – PENDING, PUBLISHED or FAILED.
//  RetryCount  – publish attempts so far.
//  MaxRetry    – ceiling after which the event is marked FAILED.
//  NextRetryAt – earliest instant the dispatcher may retry.
//  PublishedAt – set when the broker accepted the event.
//  LastError   – truncated message of the most recent publish failure.
type OutboxEvent struct {
	EventID     string     // outbox_events.event_id
	Topic       string     // outbox_events.topic
	EventKey    string     // outbox_events.event_key
	Payload     []byte     // outbox_events.payload
	Status      string     // outbox_events.status
	RetryCount  int        // outbox_events.retry_count
	MaxRetry    int        // outbox_events.max_retry
	NextRetryAt time.Time  // outbox_events.next_retry_at
	PublishedAt *time.Time // outbox_events.published_at (nullable)
	LastError   *string    // outbox_events.last_error (nullable)
	CreatedAt   time.Time  // outbox_events.created_at
	UpdatedAt   time.Time  // outbox_events.updated_at
}

// EventKey builds the partitioning key for a seat's confirm events.
func EventKey(scheduleID uint64, seatNo string) string {
	return strconv.FormatUint(scheduleID, 10) + ":" + seatNo
}

// ConfirmRequested is the payload carried by ConfirmTopic messages.
type ConfirmRequested struct {
	EventID     string    `json:"eventId"`
	ScheduleID  uint64    `json:"scheduleId"`
	SeatNo      string    `json:"seatNo"`
	UserID      uint64    `json:"userId"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}
