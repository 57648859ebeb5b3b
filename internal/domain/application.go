package domain

import "time"

// ApplicationKind identifies which service an application belongs to.
type ApplicationKind string

const (
	KindVehicle ApplicationKind = "vehicle"
	KindLicense ApplicationKind = "license"
	KindRoute   ApplicationKind = "route"
)

// Kinds lists every supported application kind.
var Kinds = []ApplicationKind{KindVehicle, KindLicense, KindRoute}

// Valid reports whether k is a known kind.
func (k ApplicationKind) Valid() bool {
	switch k {
	case KindVehicle, KindLicense, KindRoute:
		return true
	}
	return false
}

// ApplicationStatus enumerates review workflow states.
type ApplicationStatus string

const (
	StatusPending     ApplicationStatus = "Pending"
	StatusUnderReview ApplicationStatus = "Under Review"
	StatusApproved    ApplicationStatus = "Approved"
	StatusRejected    ApplicationStatus = "Rejected"
	StatusCompleted   ApplicationStatus = "Completed"
)

// Statuses lists the workflow states in display order.
var Statuses = []ApplicationStatus{StatusPending, StatusUnderReview, StatusApproved, StatusRejected, StatusCompleted}

// Valid reports whether s is a member of the status enumeration.
func (s ApplicationStatus) Valid() bool {
	for _, candidate := range Statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ApplicationType is the kind-specific request type, e.g. "New Registration".
type ApplicationType string

const (
	TypeNewRegistration ApplicationType = "New Registration"
	TypeTransfer        ApplicationType = "Transfer"
	TypeRenewal         ApplicationType = "Renewal"
	TypeReplacement     ApplicationType = "Replacement"
	TypeNewLicense      ApplicationType = "New License"
	TypeUpgrade         ApplicationType = "Upgrade"
	TypeNewRoute        ApplicationType = "New Route"
	TypeModification    ApplicationType = "Modification"
)

// ApplicationTypes maps each kind to the request types it accepts.
var ApplicationTypes = map[ApplicationKind][]ApplicationType{
	KindVehicle: {TypeNewRegistration, TypeTransfer, TypeRenewal, TypeReplacement},
	KindLicense: {TypeNewLicense, TypeRenewal, TypeReplacement, TypeUpgrade},
	KindRoute:   {TypeNewRoute, TypeRenewal, TypeModification},
}

// AcceptsType reports whether t is a valid request type for the kind.
func (k ApplicationKind) AcceptsType(t ApplicationType) bool {
	for _, candidate := range ApplicationTypes[k] {
		if candidate == t {
			return true
		}
	}
	return false
}

// PaymentStatus tracks fee settlement.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
	PaymentWaived  PaymentStatus = "Waived"
)

// Valid reports whether p is a known payment status.
func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentPaid, PaymentWaived:
		return true
	}
	return false
}

// Fees is the amount breakdown of an application. Total always equals
// Base + Penalty after any write.
type Fees struct {
	Base          int64
	Penalty       int64
	Total         int64
	PaymentStatus PaymentStatus
	PaymentDate   *time.Time
}

// Recompute restores the Total invariant.
func (f *Fees) Recompute() {
	f.Total = f.Base + f.Penalty
}

// Note is one entry of the admin notes ledger.
type Note struct {
	ID            string
	ApplicationID string
	Text          string
	AuthorID      string
	CreatedAt     time.Time
}

// Application is the aggregate for a citizen submission.
type Application struct {
	ID                 string
	Kind               ApplicationKind
	OwnerID            string
	ApplicationType    ApplicationType
	Status             ApplicationStatus
	Details            Details
	RegistrationNumber *string
	Fees               Fees
	ReviewDate         *time.Time
	CompletionDate     *time.Time
	Notes              []Note
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Clone returns a copy that shares no mutable state with a.
func (a Application) Clone() Application {
	out := a
	out.Notes = append([]Note(nil), a.Notes...)
	out.RegistrationNumber = clonePtr(a.RegistrationNumber)
	out.ReviewDate = clonePtr(a.ReviewDate)
	out.CompletionDate = clonePtr(a.CompletionDate)
	out.Fees.PaymentDate = clonePtr(a.Fees.PaymentDate)
	return out
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
