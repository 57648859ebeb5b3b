package events

import (
	"time"

	"github.com/spec-kit/transport-portal/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventApplicationCreated       EventType = "application_created"
	EventApplicationUpdated       EventType = "application_updated"
	EventApplicationStatusChanged EventType = "application_status_changed"
	EventApplicationNoteAdded     EventType = "application_note_added"
	EventApplicationDeleted       EventType = "application_deleted"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string      `json:"id"`
	Role domain.Role `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID            string                 `json:"id"`
	Type          EventType              `json:"type"`
	Kind          domain.ApplicationKind `json:"kind"`
	ApplicationID string                 `json:"application_id"`
	OwnerID       string                 `json:"owner_id"`
	Actor         Actor                  `json:"actor"`
	Timestamp     time.Time              `json:"timestamp"`
	Payload       interface{}            `json:"payload"`
}

// ApplicationCreatedPayload payload.
type ApplicationCreatedPayload struct {
	ApplicationType domain.ApplicationType `json:"application_type"`
	TotalFee        int64                  `json:"total_fee"`
}

// ApplicationUpdatedPayload payload.
type ApplicationUpdatedPayload struct {
	DetailsChanged bool  `json:"details_changed"`
	FeesChanged    bool  `json:"fees_changed"`
	TotalFee       int64 `json:"total_fee"`
}

// ApplicationStatusChangedPayload payload.
type ApplicationStatusChangedPayload struct {
	OldStatus          domain.ApplicationStatus `json:"old_status"`
	NewStatus          domain.ApplicationStatus `json:"new_status"`
	RegistrationNumber *string                  `json:"registration_number,omitempty"`
}

// ApplicationNoteAddedPayload payload.
type ApplicationNoteAddedPayload struct {
	NoteID      string `json:"note_id"`
	BodyPreview string `json:"body_preview"`
}
