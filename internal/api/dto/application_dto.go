package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/transport-portal/internal/domain"
	"github.com/spec-kit/transport-portal/internal/service"
	"github.com/spec-kit/transport-portal/internal/workflow"
)

// CreateApplicationRequest is the envelope of a submission. The kind-specific
// details are read from the same flat JSON object.
type CreateApplicationRequest struct {
	ApplicationType domain.ApplicationType `json:"applicationType" validate:"required"`
}

// FeesRequest is an admin fee adjustment.
type FeesRequest struct {
	Base          *int64                `json:"base" validate:"omitempty,gte=0"`
	Penalty       *int64                `json:"penalty" validate:"omitempty,gte=0"`
	PaymentStatus *domain.PaymentStatus `json:"paymentStatus" validate:"omitempty,oneof=Pending Paid Waived"`
}

// Adjustment converts the request into a workflow fee adjustment.
func (r FeesRequest) Adjustment() workflow.FeeAdjustment {
	return workflow.FeeAdjustment{Base: r.Base, Penalty: r.Penalty, PaymentStatus: r.PaymentStatus}
}

// NoteRequest appends an admin note.
type NoteRequest struct {
	Note string `json:"note" validate:"required"`
}

// ApplicationListQuery captures listing query parameters.
type ApplicationListQuery struct {
	Page            int    `query:"page" validate:"gte=0"`
	Limit           int    `query:"limit" validate:"gte=0"`
	Status          string `query:"status"`
	Type            string `query:"type"`
	ApplicationType string `query:"applicationType"`
	Search          string `query:"search"`
	UserID          string `query:"userId"`
}

// FeesResponse is the fee breakdown of an application.
type FeesResponse struct {
	Base          int64                `json:"base"`
	Penalty       int64                `json:"penalty"`
	Total         int64                `json:"total"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
	PaymentDate   *time.Time           `json:"paymentDate,omitempty"`
}

// NoteResponse is one ledger entry.
type NoteResponse struct {
	ID      string    `json:"id"`
	Note    string    `json:"note"`
	AddedBy string    `json:"addedBy"`
	AddedAt time.Time `json:"addedAt"`
}

// ApplicationResponse renders an application with its details flattened into
// the top-level object.
type ApplicationResponse struct {
	ID                 string                   `json:"id"`
	Kind               domain.ApplicationKind   `json:"kind"`
	UserID             string                   `json:"userId"`
	ApplicationType    domain.ApplicationType   `json:"applicationType"`
	Status             domain.ApplicationStatus `json:"status"`
	RegistrationNumber *string                  `json:"registrationNumber"`
	Fees               FeesResponse             `json:"fees"`
	ReviewDate         *time.Time               `json:"reviewDate"`
	CompletionDate     *time.Time               `json:"completionDate"`
	Notes              []NoteResponse           `json:"adminNotes"`
	CreatedAt          time.Time                `json:"createdAt"`
	UpdatedAt          time.Time                `json:"updatedAt"`
	Details            domain.Details           `json:"-"`
}

// MarshalJSON merges the details fields with the envelope; envelope fields
// win on a name clash.
func (r ApplicationResponse) MarshalJSON() ([]byte, error) {
	type envelope ApplicationResponse
	base, err := json.Marshal(envelope(r))
	if err != nil || r.Details == nil {
		return base, err
	}
	details, err := json.Marshal(r.Details)
	if err != nil {
		return nil, err
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(details, &merged); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	return json.Marshal(merged)
}

// NewApplicationResponse maps a domain application.
func NewApplicationResponse(app *domain.Application) ApplicationResponse {
	notes := make([]NoteResponse, 0, len(app.Notes))
	for _, note := range app.Notes {
		notes = append(notes, NewNoteResponse(note))
	}
	return ApplicationResponse{
		ID:                 app.ID,
		Kind:               app.Kind,
		UserID:             app.OwnerID,
		ApplicationType:    app.ApplicationType,
		Status:             app.Status,
		RegistrationNumber: app.RegistrationNumber,
		Fees: FeesResponse{
			Base:          app.Fees.Base,
			Penalty:       app.Fees.Penalty,
			Total:         app.Fees.Total,
			PaymentStatus: app.Fees.PaymentStatus,
			PaymentDate:   app.Fees.PaymentDate,
		},
		ReviewDate:     app.ReviewDate,
		CompletionDate: app.CompletionDate,
		Notes:          notes,
		CreatedAt:      app.CreatedAt,
		UpdatedAt:      app.UpdatedAt,
		Details:        app.Details,
	}
}

// NewNoteResponse maps a ledger entry.
func NewNoteResponse(note domain.Note) NoteResponse {
	return NoteResponse{ID: note.ID, Note: note.Text, AddedBy: note.AuthorID, AddedAt: note.CreatedAt}
}

// Pagination describes the position of a page.
type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	HasNext     bool `json:"hasNext"`
	HasPrev     bool `json:"hasPrev"`
}

// NewPagination derives pagination flags from a service page.
func NewPagination(page *service.ApplicationPage) Pagination {
	return Pagination{
		CurrentPage: page.Page,
		TotalPages:  page.TotalPages,
		HasNext:     page.Page < page.TotalPages,
		HasPrev:     page.Page > 1,
	}
}

// NewApplicationResponses maps a slice of applications.
func NewApplicationResponses(apps []domain.Application) []ApplicationResponse {
	out := make([]ApplicationResponse, 0, len(apps))
	for i := range apps {
		out = append(out, NewApplicationResponse(&apps[i]))
	}
	return out
}
